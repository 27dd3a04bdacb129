package brokers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
	"quote-streamer/src/serializers"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Wire constants
// -----------------------------------------------------------------------------

const (
	msgTypeSubscribe   = "subscribe"
	msgTypeUnsubscribe = "unsubscribe"
	msgTypeOrderBook   = "orderbook"
	statusSubscribed   = "subscribed"
)

// Accepted field aliases for the daily summary, in priority order
var (
	openAliases  = []string{"dayOpen", "open", "openPrice"}
	closeAliases = []string{"dayClose", "close", "prevClose"}
	highAliases  = []string{"dayHigh", "high"}
	lowAliases   = []string{"dayLow", "low"}
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// MarketSocket implements interfaces.IBroker for the order-book market socket
type MarketSocket struct {
	Name       string
	Logger     *logger.Logger
	Market     string
	Depth      int
	Serializer interfaces.ISerializer
}

// -----------------------------------------------------------------------------
// CONSTRUCTOR AND REGISTRATION
// -----------------------------------------------------------------------------

func init() {
	if err := Register("marketsocket", NewMarketSocket); err != nil {
		fmt.Printf("Error registering marketsocket broker: %v\n", err)
	}
}

// -----------------------------------------------------------------------------

// NewMarketSocket creates a new MarketSocket codec.
// Matches the interfaces.IBrokerConstructor signature.
func NewMarketSocket(config *models.MStreamConfig, logger *logger.Logger) (interfaces.IBroker, error) {
	if config == nil {
		return nil, fmt.Errorf("marketsocket: stream config is nil")
	}
	if config.Market == "" {
		return nil, fmt.Errorf("marketsocket: market category cannot be empty")
	}
	if config.Depth <= 0 {
		return nil, fmt.Errorf("marketsocket: depth must be greater than 0")
	}

	return &MarketSocket{
		Name:       config.Name,
		Logger:     logger,
		Market:     config.Market,
		Depth:      config.Depth,
		Serializer: serializers.NewJSONSerializer(),
	}, nil
}

// -----------------------------------------------------------------------------
// IBroker IMPLEMENTATION
// -----------------------------------------------------------------------------

// GetName returns the broker name
func (m *MarketSocket) GetName() string {
	return m.Name
}

// -----------------------------------------------------------------------------

// GetMarket returns the market category tagged on every subscription
func (m *MarketSocket) GetMarket() string {
	return m.Market
}

// -----------------------------------------------------------------------------

// AddSubscription creates the subscribe frame for one symbol
func (m *MarketSocket) AddSubscription(symbol string) ([]byte, error) {
	subMsg, err := m.Serializer.Marshal(models.MSubscribeMessage{
		Type:   msgTypeSubscribe,
		Market: m.Market,
		Symbol: symbol,
		Depth:  m.Depth,
	})
	if err != nil {
		m.Logger.Error("%s : failed to serialize subscription message for %s: %v", m.Name, symbol, err)
		return nil, fmt.Errorf("failed to serialize subscription message: %w", err)
	}
	return subMsg, nil
}

// -----------------------------------------------------------------------------

// RemoveSubscription creates the unsubscribe frame for one symbol
func (m *MarketSocket) RemoveSubscription(symbol string) ([]byte, error) {
	unsubMsg, err := m.Serializer.Marshal(models.MUnsubscribeMessage{
		Type:   msgTypeUnsubscribe,
		Market: m.Market,
		Symbol: symbol,
	})
	if err != nil {
		m.Logger.Error("%s : failed to serialize unsubscription message for %s: %v", m.Name, symbol, err)
		return nil, fmt.Errorf("failed to serialize unsubscription message: %w", err)
	}
	return unsubMsg, nil
}

// -----------------------------------------------------------------------------

// ParseMessage decodes an inbound frame, routing on the status/type markers.
// Only invalid JSON is reported as an error; frames of the wrong shape or with
// wrong field types come back as *models.MUnknown.
func (m *MarketSocket) ParseMessage(message []byte) (models.MInbound, error) {
	decoder := json.NewDecoder(bytes.NewReader(message))
	decoder.UseNumber() // keep numeric fields exact

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	data, ok := raw.(map[string]interface{})
	if !ok {
		return &models.MUnknown{Raw: message}, nil
	}

	if status, _ := data["status"].(string); status == statusSubscribed {
		if ack := parseSubscriptionAck(data); ack != nil {
			return ack, nil
		}
		return &models.MUnknown{Raw: message}, nil
	}

	if msgType, _ := data["type"].(string); msgType == msgTypeOrderBook {
		if update := parseOrderBook(data); update != nil {
			return update, nil
		}
	}

	return &models.MUnknown{Raw: message}, nil
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// parseSubscriptionAck extracts the symbol and daily summary of an ack.
// Daily fields are looked up at the top level first, then in the nested data object.
func parseSubscriptionAck(data map[string]interface{}) *models.MSubscriptionAck {
	symbol, ok := data["symbol"].(string)
	if !ok || symbol == "" {
		return nil
	}

	sources := []map[string]interface{}{data}
	if nested, ok := data["data"].(map[string]interface{}); ok {
		sources = append(sources, nested)
	}

	return &models.MSubscriptionAck{
		Symbol: symbol,
		Daily:  parseDaily(sources...),
	}
}

// -----------------------------------------------------------------------------

// parseOrderBook extracts the top of book of an order-book frame.
// Returns nil when any required field is missing or has the wrong type.
func parseOrderBook(frame map[string]interface{}) *models.MOrderBookUpdate {
	data, ok := frame["data"].(map[string]interface{})
	if !ok {
		return nil
	}

	symbol, ok := data["code"].(string)
	if !ok || symbol == "" {
		return nil
	}

	// topLevel returns the price and volume of the first level of a side
	topLevel := func(key string) (string, string, bool) {
		levels, ok := data[key].([]interface{})
		if !ok || len(levels) == 0 {
			return "", "", false
		}
		level, ok := levels[0].(map[string]interface{})
		if !ok {
			return "", "", false
		}
		price, ok := level["price"].(string)
		if !ok {
			return "", "", false
		}
		volume, ok := level["volume"].(string)
		if !ok {
			return "", "", false
		}
		return price, volume, true
	}

	bid, bidVolume, ok := topLevel("bids")
	if !ok {
		return nil
	}
	ask, askVolume, ok := topLevel("asks")
	if !ok {
		return nil
	}

	return &models.MOrderBookUpdate{
		Symbol:    symbol,
		Bid:       bid,
		BidVolume: bidVolume,
		Ask:       ask,
		AskVolume: askVolume,
		Daily:     parseDaily(data),
	}
}

// -----------------------------------------------------------------------------

func parseDaily(sources ...map[string]interface{}) models.MDailySummary {
	return models.MDailySummary{
		High:  lookupDecimal(sources, highAliases),
		Low:   lookupDecimal(sources, lowAliases),
		Open:  lookupDecimal(sources, openAliases),
		Close: lookupDecimal(sources, closeAliases),
	}
}

// -----------------------------------------------------------------------------

// lookupDecimal returns the first present numeric value among aliases
func lookupDecimal(sources []map[string]interface{}, aliases []string) decimal.NullDecimal {
	for _, source := range sources {
		for _, key := range aliases {
			if d, ok := toDecimal(source[key]); ok {
				return decimal.NullDecimal{Decimal: d, Valid: true}
			}
		}
	}
	return decimal.NullDecimal{}
}

// -----------------------------------------------------------------------------

// toDecimal accepts JSON numbers and numeric strings
func toDecimal(value interface{}) (decimal.Decimal, bool) {
	var text string
	switch v := value.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return decimal.Decimal{}, false
	}

	if text == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
