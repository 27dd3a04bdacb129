package models

import (
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// NoData marks a price or volume field that has not received a value yet
const NoData = "--"

// -----------------------------------------------------------------------------

// MDirection is the direction of the latest change of a price field
type MDirection string

const (
	DirectionUp   MDirection = "up"
	DirectionDown MDirection = "down"
	DirectionSame MDirection = "same"
)

// -----------------------------------------------------------------------------

// MQuoteRecord is the merged live state of one subscribed symbol.
// Prices and volumes are kept as the strings received on the wire.
type MQuoteRecord struct {
	Symbol    string     `json:"symbol"`
	Bid       string     `json:"bid"`
	Ask       string     `json:"ask"`
	BidVolume string     `json:"bidVolume"`
	AskVolume string     `json:"askVolume"`
	BidDir    MDirection `json:"bidDir"`
	AskDir    MDirection `json:"askDir"`

	// Daily summary, absent until first populated
	High  decimal.NullDecimal `json:"high"`
	Low   decimal.NullDecimal `json:"low"`
	Open  decimal.NullDecimal `json:"open"`
	Close decimal.NullDecimal `json:"close"`
}

// -----------------------------------------------------------------------------

// NewQuoteRecord returns a record seeded with NoData
func NewQuoteRecord(symbol string) MQuoteRecord {
	return MQuoteRecord{
		Symbol:    symbol,
		Bid:       NoData,
		Ask:       NoData,
		BidVolume: NoData,
		AskVolume: NoData,
		BidDir:    DirectionSame,
		AskDir:    DirectionSame,
	}
}

// -----------------------------------------------------------------------------

// MSnapshot is an immutable published view of all records, keyed by symbol.
// Holders must not modify it.
type MSnapshot map[string]MQuoteRecord

// -----------------------------------------------------------------------------

// MDailySummary carries the optional daily fields of an inbound frame
type MDailySummary struct {
	High  decimal.NullDecimal
	Low   decimal.NullDecimal
	Open  decimal.NullDecimal
	Close decimal.NullDecimal
}
