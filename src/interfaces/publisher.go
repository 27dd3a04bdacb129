package interfaces

import "quote-streamer/src/models"

// -----------------------------------------------------------------------------

// IPublisher distributes published quote snapshots to an external system
type IPublisher interface {
	// GetName returns the publisher name
	GetName() string

	// OnSnapshot receives every published snapshot and the records that changed in it
	OnSnapshot(snapshot models.MSnapshot, changed []models.MQuoteRecord)

	// Connect establishes connection to the message broker
	Connect() error

	// Disconnect closes the connection to the message broker
	Disconnect() error

	// IsConnected returns the current connection status
	IsConnected() bool
}
