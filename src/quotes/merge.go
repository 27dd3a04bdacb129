package quotes

import (
	"quote-streamer/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// applyOrderBook overwrites the top of book and merges any daily fields present
func applyOrderBook(record models.MQuoteRecord, update *models.MOrderBookUpdate) models.MQuoteRecord {
	record.BidDir = direction(record.Bid, update.Bid)
	record.AskDir = direction(record.Ask, update.Ask)

	record.Bid = update.Bid
	record.Ask = update.Ask
	record.BidVolume = update.BidVolume
	record.AskVolume = update.AskVolume

	return mergeDaily(record, update.Daily)
}

// -----------------------------------------------------------------------------

// mergeDaily sets the daily fields present in daily and keeps the rest
func mergeDaily(record models.MQuoteRecord, daily models.MDailySummary) models.MQuoteRecord {
	if daily.High.Valid {
		record.High = daily.High
	}
	if daily.Low.Valid {
		record.Low = daily.Low
	}
	if daily.Open.Valid {
		record.Open = daily.Open
	}
	if daily.Close.Valid {
		record.Close = daily.Close
	}
	return record
}

// -----------------------------------------------------------------------------

// direction compares next against the value it replaces.
// A previous NoData, or any value that is not a number, yields same.
func direction(previous string, next string) models.MDirection {
	if previous == models.NoData {
		return models.DirectionSame
	}

	prev, err := decimal.NewFromString(previous)
	if err != nil {
		return models.DirectionSame
	}
	curr, err := decimal.NewFromString(next)
	if err != nil {
		return models.DirectionSame
	}

	switch curr.Cmp(prev) {
	case 1:
		return models.DirectionUp
	case -1:
		return models.DirectionDown
	default:
		return models.DirectionSame
	}
}
