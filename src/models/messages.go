package models

// -----------------------------------------------------------------------------
// Outbound frames
// -----------------------------------------------------------------------------

// MSubscribeMessage asks the venue to start streaming a symbol
type MSubscribeMessage struct {
	Type   string `json:"type"`
	Market string `json:"market"`
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth"`
}

// -----------------------------------------------------------------------------

// MUnsubscribeMessage asks the venue to stop streaming a symbol
type MUnsubscribeMessage struct {
	Type   string `json:"type"`
	Market string `json:"market"`
	Symbol string `json:"symbol"`
}

// -----------------------------------------------------------------------------
// Inbound frames
// -----------------------------------------------------------------------------

// MInbound is the closed set of decoded inbound frames:
// *MSubscriptionAck, *MOrderBookUpdate or *MUnknown.
type MInbound interface {
	inbound()
}

// -----------------------------------------------------------------------------

// MSubscriptionAck confirms a subscription and may carry the daily summary
type MSubscriptionAck struct {
	Symbol string
	Daily  MDailySummary
}

// -----------------------------------------------------------------------------

// MOrderBookUpdate carries the top of book for one symbol
type MOrderBookUpdate struct {
	Symbol    string
	Bid       string
	BidVolume string
	Ask       string
	AskVolume string
	Daily     MDailySummary
}

// -----------------------------------------------------------------------------

// MUnknown is any well-formed frame that is neither an ack nor an order book
type MUnknown struct {
	Raw []byte
}

func (*MSubscriptionAck) inbound() {}
func (*MOrderBookUpdate) inbound() {}
func (*MUnknown) inbound()         {}
