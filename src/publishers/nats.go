package publishers

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	"github.com/nats-io/nats.go"
)

// -----------------------------------------------------------------------------
// NATSPublisher implements interfaces.IPublisher and publishes every changed
// quote record to <prefix>.quotes.<symbol>
// -----------------------------------------------------------------------------

type NATSPublisher struct {
	name   string
	config *models.MNATSConfig
	logger *logger.Logger

	useJetStream bool

	mu sync.RWMutex

	nc         *nats.Conn             // NATS core connection
	js         nats.JetStreamContext  // JetStream context (if enabled)
	serializer interfaces.ISerializer // serialize records before sending

	connected atomic.Bool
}

// -----------------------------------------------------------------------------

// NewNATSPublisher creates a new NATS publisher instance
func NewNATSPublisher(config *models.MNATSConfig, logger *logger.Logger, serializer interfaces.ISerializer) *NATSPublisher {
	return &NATSPublisher{
		name:       config.ClientID,
		config:     config,
		logger:     logger,
		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------

// OnSnapshot publishes the records that changed in the snapshot
func (np *NATSPublisher) OnSnapshot(snapshot models.MSnapshot, changed []models.MQuoteRecord) {
	if !np.IsConnected() {
		return
	}

	for _, record := range changed {
		subject := QuoteSubject(record.Symbol)

		dataSerialized, err := np.serializer.Marshal(record)
		if err != nil {
			np.logger.Error("%s : failed to serialize quote for %s: %v", np.name, subject, err)
			continue
		}

		if np.useJetStream {
			err = np.PublishJetStream(subject, dataSerialized)
		} else {
			err = np.Publish(subject, dataSerialized)
		}
		if err != nil {
			np.logger.Error("%s : failed to publish quote for %s to NATS subject %s: %v",
				np.name, record.Symbol, subject, err)
		}
	}
}

// -----------------------------------------------------------------------------

// QuoteSubject returns the unprefixed subject of a symbol
func QuoteSubject(symbol string) string {
	return fmt.Sprintf("quotes.%s", symbol)
}

// -----------------------------------------------------------------------------

// Publish sends raw data to a NATS core subject.
func (np *NATSPublisher) Publish(subject string, data []byte) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}

	np.mu.RLock()
	defer np.mu.RUnlock()

	// fire-and-forget; use PublishJetStream for persistence
	return np.nc.Publish(np.getSubject(subject), data)
}

// -----------------------------------------------------------------------------

// PublishJetStream sends raw data using JetStream.
func (np *NATSPublisher) PublishJetStream(subject string, data []byte) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}

	np.mu.RLock()
	defer np.mu.RUnlock()

	if np.js == nil {
		return fmt.Errorf("jetstream is not initialized or enabled")
	}

	fullSubject := np.getSubject(subject)
	if _, err := np.js.Publish(fullSubject, data); err != nil {
		np.logger.Error("%s : jetstream publish failed for %s: %v", np.name, fullSubject, err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Connect establishes connection to NATS server and sets up JetStream context if configured.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}
	if len(np.config.Servers) == 0 {
		return fmt.Errorf("nats servers list is empty")
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.Timeout(np.config.ConnectTimeout),
		nats.ReconnectWait(np.config.ReconnectWait),
		nats.MaxReconnects(np.config.MaxReconnects),
		nats.FlusherTimeout(np.config.FlushTimeout),

		// Connection Event Handlers
		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Error("%s : NATS connection closed", np.name)
			np.connected.Store(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warning("%s : NATS disconnected, attempting reconnect: %v", np.name, err)
			np.connected.Store(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS successfully reconnected to %s", np.name, nc.ConnectedUrl())
			np.connected.Store(true)
		}),
	}

	var err error
	np.nc, err = nats.Connect(np.config.Servers[0], opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}

	np.connected.Store(np.nc.IsConnected())
	np.logger.Info("%s : connected to NATS at %s", np.name, np.nc.ConnectedUrl())

	if np.config.JetStream != nil && np.config.JetStream.Enabled {
		np.useJetStream = true
		np.logger.Info("%s : publisher using NATS JetStream for persistent quote publishing", np.name)

		np.js, err = np.nc.JetStream()
		if err != nil {
			np.logger.Error("%s : failed to create JetStream context: %v", np.name, err)
			return fmt.Errorf("jetstream context creation failed: %w", err)
		}

		if err := np.ensureStreamExists(); err != nil {
			// publishing fails later if the stream really does not exist
			np.logger.Warning("%s : failed to ensure stream exists: %v (continuing anyway)", np.name, err)
		}
	} else {
		np.useJetStream = false
		np.logger.Info("%s : publisher using NATS Core (fire-and-forget)", np.name)
	}

	return nil
}

// -----------------------------------------------------------------------------

// ensureStreamExists creates the configured JetStream stream when missing
func (np *NATSPublisher) ensureStreamExists() error {
	if np.js == nil || np.config.JetStream == nil {
		return fmt.Errorf("jetstream not initialized")
	}

	streamName := np.config.JetStream.StreamName
	if streamName == "" {
		return fmt.Errorf("stream name not configured")
	}

	stream, err := np.js.StreamInfo(streamName)
	if err == nil {
		np.logger.Info("%s : JetStream stream '%s' already exists with %d subjects",
			np.name, streamName, len(stream.Config.Subjects))
		return nil
	}

	np.logger.Info("%s : creating JetStream stream '%s'", np.name, streamName)

	maxAge := np.config.JetStream.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}

	streamConfig := &nats.StreamConfig{
		Name:              streamName,
		Subjects:          np.config.JetStream.Subjects,
		Retention:         nats.LimitsPolicy,
		Storage:           nats.FileStorage,
		Replicas:          np.config.JetStream.Replicas,
		MaxAge:            maxAge,
		MaxMsgs:           np.config.JetStream.MaxMsgs,
		MaxBytes:          np.config.JetStream.MaxBytes,
		MaxMsgSize:        int32(np.config.JetStream.MaxMsgSize),
		MaxMsgsPerSubject: 1, // latest quote per symbol
		Discard:           nats.DiscardOld,
	}

	if _, err := np.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
	}

	np.logger.Info("%s : created JetStream stream '%s' with subjects: %v",
		np.name, streamName, np.config.JetStream.Subjects)
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the NATS connection
func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	if err := np.nc.Drain(); err != nil {
		np.logger.Warning("%s : NATS drain failed, closing: %v", np.name, err)
		np.nc.Close()
	}
	np.connected.Store(false)
	np.logger.Info("%s : NATS connection closed successfully", np.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (np *NATSPublisher) IsConnected() bool {
	return np.connected.Load()
}

// -----------------------------------------------------------------------------

// GetName returns client identifier
func (np *NATSPublisher) GetName() string {
	return np.name
}

// -----------------------------------------------------------------------------

// Flush waits until the server has processed everything published so far
func (np *NATSPublisher) Flush() error {
	if !np.IsConnected() {
		return fmt.Errorf("cannot flush: nats client not connected")
	}

	np.mu.RLock()
	defer np.mu.RUnlock()
	return np.nc.FlushTimeout(np.config.FlushTimeout)
}

// -----------------------------------------------------------------------------

// getSubject prepends the configured subject prefix if it exists.
func (np *NATSPublisher) getSubject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return fmt.Sprintf("%s.%s", np.config.SubjectPrefix, subject)
	}
	return subject
}
