package interfaces

import "quote-streamer/src/models"

// -----------------------------------------------------------------------------
// IQuoteStore persists the last known record of every symbol.
// -----------------------------------------------------------------------------

type IQuoteStore interface {
	// Initialize sets up the database schema and tables.
	Initialize() error

	// SaveQuotes upserts the given records by symbol.
	SaveQuotes(records []models.MQuoteRecord) error

	// LoadQuotes returns every stored record keyed by symbol.
	LoadQuotes() (map[string]models.MQuoteRecord, error)

	// Close the database connection
	Close() error
}
