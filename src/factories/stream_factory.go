package factories

import (
	"fmt"

	"quote-streamer/src/brokers"
	"quote-streamer/src/config"
	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/publishers"
	"quote-streamer/src/quotes"
	"quote-streamer/src/serializers"
	"quote-streamer/src/transports"
	"quote-streamer/src/utils"
)

// -----------------------------------------------------------------------------

// StreamFactory builds the stream components described by the configuration
type StreamFactory struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewStreamFactory creates a new StreamFactory instance
func NewStreamFactory(config *config.Config, logger *logger.Logger) *StreamFactory {
	return &StreamFactory{
		Name:   "StreamFactory",
		Config: config,
		Logger: logger,
	}
}

// -----------------------------------------------------------------------------

// CreateBroker creates the configured wire codec using the dynamic registry.
func (sf *StreamFactory) CreateBroker() (interfaces.IBroker, error) {
	brokerName := sf.Config.Stream.Broker

	// Dynamically fetch the constructor from the broker package registry
	constructor, err := brokers.GetConstructor(brokerName)
	if err != nil {
		return nil, err // Returns "unknown broker type: ..." error
	}

	newBroker, err := constructor(&sf.Config.Stream, sf.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker %s: %w", brokerName, err)
	}

	sf.Logger.Info("%s : successfully created broker %s for market %s",
		sf.Name,
		newBroker.GetName(),
		newBroker.GetMarket(),
	)

	return newBroker, nil
}

// -----------------------------------------------------------------------------

// CreateConnectionClient creates a WebSocket client speaking the configured codec
func (sf *StreamFactory) CreateConnectionClient() (interfaces.IConnectionClient, error) {
	broker, err := sf.CreateBroker()
	if err != nil {
		return nil, fmt.Errorf("failed to get broker for connection client: %w", err)
	}
	return transports.NewWebSocketClient(&sf.Config.Stream, sf.Logger, broker), nil
}

// -----------------------------------------------------------------------------

// CreateLiveQuotes creates the aggregator. Every session gets a fresh client
// sharing one codec instance.
func (sf *StreamFactory) CreateLiveQuotes(frames utils.FrameSource) (*quotes.LiveQuotes, error) {
	broker, err := sf.CreateBroker()
	if err != nil {
		return nil, err
	}

	newClient := func() interfaces.IConnectionClient {
		return transports.NewWebSocketClient(&sf.Config.Stream, sf.Logger, broker)
	}

	return quotes.NewLiveQuotes(&sf.Config.Stream, sf.Logger, frames, newClient), nil
}

// -----------------------------------------------------------------------------

// CreatePublishers creates every enabled snapshot publisher. They are not connected yet.
func (sf *StreamFactory) CreatePublishers() ([]interfaces.IPublisher, error) {
	var result []interfaces.IPublisher

	if natsConfig := &sf.Config.Publishers.NATS; natsConfig.Enabled {
		serializer, err := serializers.NewSerializer("json")
		if err != nil {
			return nil, err
		}
		result = append(result, publishers.NewNATSPublisher(natsConfig, sf.Logger, serializer))
	}

	if redisConfig := &sf.Config.Publishers.Redis; redisConfig.Enabled {
		serializer, err := serializers.NewSerializer(redisConfig.Serializer)
		if err != nil {
			return nil, fmt.Errorf("redis publisher: %w", err)
		}
		result = append(result, publishers.NewRedisPublisher("RedisPublisher", redisConfig, sf.Logger, serializer))
	}

	sf.Logger.Info("%s : created %d publishers", sf.Name, len(result))
	return result, nil
}
