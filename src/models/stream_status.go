package models

// -----------------------------------------------------------------------------

// MConnectionState is the lifecycle state of the upstream connection
type MConnectionState string

const (
	StateIdle       MConnectionState = "IDLE"
	StateConnecting MConnectionState = "CONNECTING"
	StateOpen       MConnectionState = "OPEN"
	StateClosed     MConnectionState = "CLOSED"
)

// -----------------------------------------------------------------------------

// MStreamStatus represents the runtime status and technical metadata of the quote stream.
// It aggregates information from the connection client and the aggregator.
type MStreamStatus struct {
	StreamName    string           `json:"stream_name"`
	State         MConnectionState `json:"state"`          // From IConnectionClient.State()
	TransportType string           `json:"transport_type"` // e.g., "websocket"
	Endpoint      string           `json:"endpoint"`       // token masked
	Symbols       []string         `json:"symbols"`        // current subscription set
	Pending       int              `json:"pending"`        // intents waiting for the connection
}
