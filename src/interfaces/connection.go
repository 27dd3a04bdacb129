package interfaces

import "quote-streamer/src/models"

// -----------------------------------------------------------------------------

// IConnectionClient owns one persistent streaming connection
type IConnectionClient interface {
	// Connect starts a connection authenticated by token. It is a no-op while a
	// connection is opening or open; onMessage receives every decoded frame in arrival order.
	Connect(token string, onMessage func(models.MInbound)) error

	// Subscribe sends a subscribe frame now, or queues it until the connection opens
	Subscribe(symbol string)

	// Unsubscribe sends an unsubscribe frame when open and always cancels a queued subscribe
	Unsubscribe(symbol string)

	// Close terminates the connection, deferring until the handshake completes if needed
	Close()

	// State returns the lifecycle state
	State() models.MConnectionState

	// PendingCount returns the number of queued intents
	PendingCount() int

	// GetName returns the client name
	GetName() string

	// GetType returns the transport type
	GetType() string
}
