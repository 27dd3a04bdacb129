package interfaces

import (
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
)

// -----------------------------------------------------------------------------

// IBrokerConstructor defines the function signature for creating a new IBroker instance.
type IBrokerConstructor func(config *models.MStreamConfig, logger *logger.Logger) (IBroker, error)

// -----------------------------------------------------------------------------

// IBroker is the wire codec of a market-data venue
type IBroker interface {
	// GetName return the broker name
	GetName() string

	// GetMarket return the market category tagged on subscriptions
	GetMarket() string

	// AddSubscription creates the subscribe frame for one symbol
	AddSubscription(symbol string) ([]byte, error)

	// RemoveSubscription creates the unsubscribe frame for one symbol
	RemoveSubscription(symbol string) ([]byte, error)

	// ParseMessage decodes an inbound frame into a tagged variant.
	// Invalid JSON is an error; any other unrecognised frame is *models.MUnknown.
	ParseMessage(message []byte) (models.MInbound, error)
}
