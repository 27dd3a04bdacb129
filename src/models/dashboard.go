package models

// -----------------------------------------------------------------------------
// Dashboard WebSocket messages
// -----------------------------------------------------------------------------

const (
	MessageInitial = "INITIAL"
	MessageUpdate  = "UPDATE"
)

// MQuoteMessage is pushed to dashboard clients
type MQuoteMessage struct {
	Type      string    `json:"type"` // "INITIAL" or "UPDATE"
	Quotes    MSnapshot `json:"quotes"`
	Changed   []string  `json:"changed,omitempty"` // symbols changed in this update
	Timestamp int64     `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MSubscribeCommand narrows a dashboard client to a set of symbols.
// An empty list restores the full feed.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}

// -----------------------------------------------------------------------------

// MSymbolsRequest is the body of PUT /api/symbols
type MSymbolsRequest struct {
	Symbols []string `json:"symbols"`
}
