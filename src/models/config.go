package models

import "time"

// -----------------------------------------------------------------------------

// MConfig is the root of the YAML configuration file
type MConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	GRPC_Host string `yaml:"grpc_host"`
	GRPC_Port int    `yaml:"grpc_port"`

	Stream     MStreamConfig     `yaml:"stream"`
	Symbols    []string          `yaml:"symbols"`
	Publishers MPublishersConfig `yaml:"publishers"`
	Storage    MStorageConfig    `yaml:"storage"`
}

// -----------------------------------------------------------------------------

// MStreamConfig describes the upstream market-data WebSocket endpoint
type MStreamConfig struct {
	Name             string           `yaml:"name"`
	Broker           string           `yaml:"broker"` // codec registered in src/brokers
	Endpoint         string           `yaml:"endpoint"`
	PageScheme       string           `yaml:"page_scheme"` // scheme used for protocol-relative endpoints
	Token            string           `yaml:"token"`
	Market           string           `yaml:"market"`
	Depth            int              `yaml:"depth"`
	HandshakeTimeout time.Duration    `yaml:"handshake_timeout"`
	FrameInterval    time.Duration    `yaml:"frame_interval"`
	SendRate         float64          `yaml:"send_rate"` // outbound frames per second
	SendBurst        int              `yaml:"send_burst"`
	Reconnect        MReconnectConfig `yaml:"reconnect"`
}

// -----------------------------------------------------------------------------

// MReconnectConfig is the policy applied after an unexpected closure.
// The zero value disables reconnection.
type MReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 means unlimited
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// -----------------------------------------------------------------------------

// MPublishersConfig groups the snapshot sinks
type MPublishersConfig struct {
	NATS  MNATSConfig  `yaml:"nats"`
	Redis MRedisConfig `yaml:"redis"`
}

// -----------------------------------------------------------------------------

// MNATSConfig holds NATS connection settings
type MNATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	ClientID       string        `yaml:"client_id"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`

	JetStream *MJetStreamConfig `yaml:"jetstream"` // nil or disabled means NATS Core
}

// -----------------------------------------------------------------------------

// MJetStreamConfig describes the stream quotes are persisted to
type MJetStreamConfig struct {
	Enabled    bool          `yaml:"enabled"`
	StreamName string        `yaml:"stream_name"`
	Subjects   []string      `yaml:"subjects"`
	Replicas   int           `yaml:"replicas"`
	MaxAge     time.Duration `yaml:"max_age"`
	MaxMsgs    int64         `yaml:"max_msgs"`
	MaxBytes   int64         `yaml:"max_bytes"`
	MaxMsgSize int           `yaml:"max_msg_size"`
}

// -----------------------------------------------------------------------------

// MRedisConfig holds Redis cache/pub-sub settings
type MRedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Serializer    string        `yaml:"serializer"` // "json" or "gob"
}

// -----------------------------------------------------------------------------

// MStorageConfig selects the last-known quote store
type MStorageConfig struct {
	DBType             string        `yaml:"db_type"` // "sqlite", "postgres" or "none"
	DBPath             string        `yaml:"db_path"`
	DBConnectionString string        `yaml:"db_connection_string"`
	FlushInterval      time.Duration `yaml:"flush_interval"` // how often changed quotes are written
}
