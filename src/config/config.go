package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quote-streamer/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file
const (
	EnvStreamEndpoint = "QUOTES_STREAM_ENDPOINT"
	EnvStreamToken    = "QUOTES_STREAM_TOKEN"
	EnvSymbols        = "QUOTES_SYMBOLS"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Load .env into the process environment when present
	_ = godotenv.Load()

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from YAML bytes and the process environment
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation.
// An empty stream endpoint is accepted: the connection manager logs it and stays idle.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid application port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GRPC_Port <= 1024 || c.GRPC_Port > 65535 {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC_Port)
	}

	if c.Stream.Depth <= 0 {
		return fmt.Errorf("stream depth must be greater than 0")
	}
	if c.Stream.FrameInterval <= 0 {
		return fmt.Errorf("stream frame interval must be greater than 0")
	}
	switch c.Stream.PageScheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid page scheme '%s' (must be http or https)", c.Stream.PageScheme)
	}

	reconnect := c.Stream.Reconnect
	if reconnect.Enabled {
		if reconnect.MaxAttempts < 0 {
			return fmt.Errorf("reconnect max attempts cannot be negative")
		}
		if reconnect.BaseDelay <= 0 || reconnect.MaxDelay < reconnect.BaseDelay {
			return fmt.Errorf("reconnect delays invalid: base %v, max %v", reconnect.BaseDelay, reconnect.MaxDelay)
		}
	}

	if c.Publishers.NATS.Enabled && len(c.Publishers.NATS.Servers) == 0 {
		return fmt.Errorf("NATS servers list cannot be empty")
	}
	if js := c.Publishers.NATS.JetStream; c.Publishers.NATS.Enabled && js != nil && js.Enabled {
		if js.StreamName == "" || len(js.Subjects) == 0 {
			return fmt.Errorf("JetStream requires a stream name and at least one subject")
		}
	}
	if c.Publishers.Redis.Enabled && c.Publishers.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	switch c.Storage.DBType {
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type '%s'", c.Storage.DBType)
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStreamEndpoint); v != "" {
		c.Stream.Endpoint = v
	}
	if v := os.Getenv(EnvStreamToken); v != "" {
		c.Stream.Token = v
	}
	if v := os.Getenv(EnvSymbols); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		c.Symbols = symbols
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	s := &c.Stream
	if s.Name == "" {
		s.Name = "market-stream"
	}
	if s.Broker == "" {
		s.Broker = "marketsocket"
	}
	if s.PageScheme == "" {
		s.PageScheme = "https"
	}
	if s.Market == "" {
		s.Market = "spot"
	}
	if s.Depth == 0 {
		s.Depth = 1
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 10 * time.Second
	}
	if s.FrameInterval == 0 {
		s.FrameInterval = 16 * time.Millisecond
	}
	if s.SendRate == 0 {
		s.SendRate = 50
	}
	if s.SendBurst == 0 {
		s.SendBurst = 50
	}
	if s.Reconnect.Enabled {
		if s.Reconnect.BaseDelay == 0 {
			s.Reconnect.BaseDelay = time.Second
		}
		if s.Reconnect.MaxDelay == 0 {
			s.Reconnect.MaxDelay = 30 * time.Second
		}
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "none"
	}
	if c.Storage.FlushInterval == 0 {
		c.Storage.FlushInterval = time.Second
	}

	r := &c.Publishers.Redis
	if r.KeyPrefix == "" {
		r.KeyPrefix = "quote:"
	}
	if r.ChannelPrefix == "" {
		r.ChannelPrefix = "quotes."
	}
	if r.Serializer == "" {
		r.Serializer = "json"
	}

	n := &c.Publishers.NATS
	if n.ClientID == "" {
		n.ClientID = c.Name
	}
	if n.ConnectTimeout == 0 {
		n.ConnectTimeout = 5 * time.Second
	}
	if n.ReconnectWait == 0 {
		n.ReconnectWait = 2 * time.Second
	}
	if n.FlushTimeout == 0 {
		n.FlushTimeout = time.Second
	}
}
