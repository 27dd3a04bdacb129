package interfaces

import "quote-streamer/src/models"

// -----------------------------------------------------------------------------
// IQuoteStream is the read/control surface of the live quote aggregator
// exposed to the dashboard and control plane.
// -----------------------------------------------------------------------------

type IQuoteStream interface {
	// Snapshot returns the latest published snapshot
	Snapshot() models.MSnapshot

	// Symbols returns the current subscription set
	Symbols() []string

	// SetSymbols replaces the subscription set
	SetSymbols(symbols []string)

	// OnSnapshot registers a listener called for every published snapshot
	OnSnapshot(fn func(snapshot models.MSnapshot, changed []models.MQuoteRecord))

	// Status returns the runtime status of the stream
	Status() *models.MStreamStatus
}
