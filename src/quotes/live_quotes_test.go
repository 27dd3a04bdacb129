package quotes

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"quote-streamer/src/brokers"
	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
	"quote-streamer/src/utils"
)

// fakeClient records every call the aggregator makes on its connection
type fakeClient struct {
	mu        sync.Mutex
	state     models.MConnectionState
	onMessage func(models.MInbound)
	calls     []string
}

func (f *fakeClient) Connect(token string, onMessage func(models.MInbound)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == models.StateConnecting || f.state == models.StateOpen {
		return nil
	}
	f.state = models.StateOpen
	f.onMessage = onMessage
	f.calls = append(f.calls, "connect:"+token)
	return nil
}

func (f *fakeClient) Subscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe:"+symbol)
}

func (f *fakeClient) Unsubscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unsubscribe:"+symbol)
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = models.StateClosed
	f.calls = append(f.calls, "close")
}

func (f *fakeClient) State() models.MConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// drop simulates an unexpected closure without reconnect
func (f *fakeClient) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = models.StateIdle
}

func (f *fakeClient) PendingCount() int { return 0 }
func (f *fakeClient) GetName() string   { return "fake" }
func (f *fakeClient) GetType() string   { return "fake" }

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// deliver hands a frame to the aggregator the way the read loop does
func (f *fakeClient) deliver(msg models.MInbound) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn(msg)
}

// -----------------------------------------------------------------------------

type harness struct {
	quotes  *LiveQuotes
	frames  *utils.ManualFrames
	clients []*fakeClient
	broker  interfaces.IBroker

	published []models.MSnapshot
	changed   [][]models.MQuoteRecord
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config := &models.MStreamConfig{Name: "test", Endpoint: "wss://md.example.com/ws", Market: "spot", Depth: 1}
	l := logger.NewNopLogger("test")

	broker, err := brokers.NewMarketSocket(config, l)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{frames: utils.NewManualFrames(), broker: broker}
	h.quotes = NewLiveQuotes(config, l, h.frames, func() interfaces.IConnectionClient {
		c := &fakeClient{state: models.StateIdle}
		h.clients = append(h.clients, c)
		return c
	})
	h.quotes.OnSnapshot(func(snapshot models.MSnapshot, changed []models.MQuoteRecord) {
		h.published = append(h.published, snapshot)
		h.changed = append(h.changed, changed)
	})
	t.Cleanup(h.quotes.Close)
	return h
}

func (h *harness) client(t *testing.T) *fakeClient {
	t.Helper()
	if len(h.clients) == 0 {
		t.Fatal("no connection client was created")
	}
	return h.clients[len(h.clients)-1]
}

// receive parses a raw frame with the wire codec and delivers it
func (h *harness) receive(t *testing.T, raw string) {
	t.Helper()
	msg, err := h.broker.ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("codec rejected %s: %v", raw, err)
	}
	h.client(t).deliver(msg)
}

func orderBook(symbol, bid, ask string, extra string) string {
	return fmt.Sprintf(`{"type":"orderbook","data":{"code":%q,"bids":[{"price":%q,"volume":"1"}],"asks":[{"price":%q,"volume":"2"}]%s}}`,
		symbol, bid, ask, extra)
}

// -----------------------------------------------------------------------------

func TestScenario_SingleSymbolOrderBook(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"BTCUSDT"})

	if got, want := h.client(t).Calls(), []string{"subscribe:BTCUSDT", "connect:tok"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}

	h.receive(t, `{"type":"orderbook","data":{"code":"BTCUSDT","bids":[{"price":"50000.00","volume":"1.2"}],"asks":[{"price":"50005.00","volume":"0.8"}]}}`)
	h.frames.Tick()

	record, ok := h.quotes.Snapshot()["BTCUSDT"]
	if !ok {
		t.Fatal("BTCUSDT missing from snapshot")
	}
	if record.Bid != "50000.00" || record.Ask != "50005.00" || record.BidVolume != "1.2" || record.AskVolume != "0.8" {
		t.Errorf("unexpected top of book %+v", record)
	}
	if record.BidDir != models.DirectionSame || record.AskDir != models.DirectionSame {
		t.Errorf("unexpected directions %s/%s", record.BidDir, record.AskDir)
	}
}

func TestLazyConnectNeedsTokenAndSymbols(t *testing.T) {
	h := newHarness(t)

	h.quotes.SetSymbols([]string{"AAA", "BBB"})
	if len(h.clients) != 0 {
		t.Fatal("must not connect without a token")
	}
	h.frames.Tick()
	if _, ok := h.quotes.Snapshot()["AAA"]; !ok {
		t.Error("records are seeded before the connection exists")
	}

	h.quotes.SetToken("tok")
	if got, want := h.client(t).Calls(), []string{"subscribe:AAA", "subscribe:BBB", "connect:tok"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestMergeKeepsAbsentDailyFields(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})

	h.receive(t, `{"status":"subscribed","symbol":"AAA","dayHigh":"10","dayLow":"5"}`)
	h.receive(t, orderBook("AAA", "7", "8", `,"dayLow":"4"`))
	h.frames.Tick()

	record := h.quotes.Snapshot()["AAA"]
	if !record.High.Valid || record.High.Decimal.String() != "10" {
		t.Errorf("high must survive an order book without it, got %+v", record.High)
	}
	if !record.Low.Valid || record.Low.Decimal.String() != "4" {
		t.Errorf("low must be updated from the order book, got %+v", record.Low)
	}
	if record.Bid != "7" {
		t.Errorf("ack must not touch bid, got %s", record.Bid)
	}
}

func TestAckNeverTouchesTopOfBook(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})

	h.receive(t, `{"status":"subscribed","symbol":"AAA","open":"3","data":{"dayClose":"4"}}`)
	h.frames.Tick()

	record := h.quotes.Snapshot()["AAA"]
	if record.Bid != models.NoData || record.Ask != models.NoData {
		t.Errorf("ack changed top of book: %+v", record)
	}
	if record.Open.Decimal.String() != "3" || record.Close.Decimal.String() != "4" {
		t.Errorf("unexpected daily fields open=%s close=%s", record.Open.Decimal, record.Close.Decimal)
	}
}

func TestDirectionSequence(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})

	steps := []struct {
		bid  string
		want models.MDirection
	}{
		{"100.00", models.DirectionSame},
		{"100.50", models.DirectionUp},
		{"99.00", models.DirectionDown},
		{"99.00", models.DirectionSame},
		{"99.000", models.DirectionSame},
	}

	for _, step := range steps {
		h.receive(t, orderBook("AAA", step.bid, "200", ""))
		h.frames.Tick()
		if got := h.quotes.Snapshot()["AAA"].BidDir; got != step.want {
			t.Errorf("bid %s: direction %s, want %s", step.bid, got, step.want)
		}
	}
}

func TestDirectionFromPreviousValue(t *testing.T) {
	tests := []struct {
		previous string
		next     string
		want     models.MDirection
	}{
		{models.NoData, "100", models.DirectionSame},
		{"100.00", "100.50", models.DirectionUp},
		{"100.00", "99.00", models.DirectionDown},
		{"100.00", "100.00", models.DirectionSame},
		{"9.5", "10", models.DirectionUp},
		{"abc", "10", models.DirectionSame},
	}

	for _, tt := range tests {
		if got := direction(tt.previous, tt.next); got != tt.want {
			t.Errorf("direction(%q, %q) = %s, want %s", tt.previous, tt.next, got, tt.want)
		}
	}
}

func TestStaleAckIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	h.frames.Tick()

	h.receive(t, `{"status":"subscribed","symbol":"ZZZ","dayHigh":"1"}`)
	if h.frames.Pending() != 0 {
		t.Error("ack for an unknown symbol must not schedule a publish")
	}
	h.frames.Tick()
	if _, ok := h.quotes.Snapshot()["ZZZ"]; ok {
		t.Error("ack created a record")
	}

	h.quotes.SetSymbols([]string{"BBB"})
	h.receive(t, `{"status":"subscribed","symbol":"AAA","dayHigh":"1"}`)
	h.receive(t, orderBook("AAA", "1", "2", ""))
	h.frames.Tick()
	if _, ok := h.quotes.Snapshot()["AAA"]; ok {
		t.Error("frames after unsubscribe resurrected the record")
	}
}

func TestSameSymbolSetIssuesNoCalls(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA", "BBB"})
	before := len(h.client(t).Calls())

	h.quotes.SetSymbols([]string{"BBB", "AAA", "AAA"})
	if got := h.client(t).Calls()[before:]; len(got) != 0 {
		t.Errorf("expected no additional calls, got %v", got)
	}
}

func TestSymbolSetDiff(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA", "BBB"})
	h.receive(t, orderBook("BBB", "10", "11", ""))
	before := len(h.client(t).Calls())

	h.quotes.SetSymbols([]string{"BBB", "CCC"})

	if got, want := h.client(t).Calls()[before:], []string{"unsubscribe:AAA", "subscribe:CCC"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	h.frames.Tick()
	snapshot := h.quotes.Snapshot()
	if _, ok := snapshot["AAA"]; ok {
		t.Error("removed symbol still present")
	}
	if snapshot["BBB"].Bid != "10" {
		t.Errorf("unchanged symbol lost its data: %+v", snapshot["BBB"])
	}
	if snapshot["CCC"].Bid != models.NoData {
		t.Errorf("added symbol not seeded: %+v", snapshot["CCC"])
	}
	if got := h.quotes.Symbols(); !reflect.DeepEqual(got, []string{"BBB", "CCC"}) {
		t.Errorf("Symbols() = %v", got)
	}
}

func TestPublishCoalescesWithinOneFrame(t *testing.T) {
	h := newHarness(t)
	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%d", i)
	}
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols(symbols)
	h.frames.Tick()
	published := len(h.published)

	for i, symbol := range symbols {
		h.receive(t, orderBook(symbol, fmt.Sprintf("%d.5", i), "999", ""))
	}
	if h.frames.Pending() != 1 {
		t.Fatalf("expected one pending frame, got %d", h.frames.Pending())
	}
	if ran := h.frames.Tick(); ran != 1 {
		t.Fatalf("expected one frame callback, got %d", ran)
	}

	if got := len(h.published) - published; got != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", got)
	}
	snapshot := h.published[len(h.published)-1]
	for i, symbol := range symbols {
		if want := fmt.Sprintf("%d.5", i); snapshot[symbol].Bid != want {
			t.Errorf("%s: bid %s, want %s", symbol, snapshot[symbol].Bid, want)
		}
	}
	if got := len(h.changed[len(h.changed)-1]); got != 10 {
		t.Errorf("expected 10 changed records, got %d", got)
	}
}

func TestPublishedSnapshotIsNotMutated(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	h.receive(t, orderBook("AAA", "1", "2", ""))
	h.frames.Tick()
	first := h.quotes.Snapshot()

	h.receive(t, orderBook("AAA", "3", "4", ""))
	if first["AAA"].Bid != "1" {
		t.Error("buffer mutation leaked into the published snapshot")
	}
	if h.quotes.Snapshot()["AAA"].Bid != "1" {
		t.Error("snapshot changed before the frame fired")
	}
	h.frames.Tick()
	if h.quotes.Snapshot()["AAA"].Bid != "3" {
		t.Error("frame did not publish the update")
	}
}

func TestMalformedFrameLeavesRecordsUnchanged(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	h.receive(t, orderBook("AAA", "1", "2", ""))
	h.frames.Tick()
	before := h.quotes.Snapshot()["AAA"]

	h.receive(t, `{"type":"orderbook","data":{"code":"AAA","bids":"not-an-array","asks":[{"price":"5","volume":"1"}]}}`)
	if h.frames.Pending() != 0 {
		t.Error("malformed frame scheduled a publish")
	}
	h.frames.Tick()
	if after := h.quotes.Snapshot()["AAA"]; after.Bid != before.Bid || after.Ask != before.Ask {
		t.Errorf("record changed: %+v -> %+v", before, after)
	}
}

func TestTokenChangeStartsNewSession(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok1")
	h.quotes.SetSymbols([]string{"AAA", "BBB"})
	h.receive(t, orderBook("AAA", "1", "2", ""))
	old := h.client(t)

	h.quotes.SetToken("tok2")

	if old.State() != models.StateClosed {
		t.Error("old connection not closed")
	}
	if len(h.clients) != 2 {
		t.Fatalf("expected a second connection, got %d", len(h.clients))
	}
	if got, want := h.client(t).Calls(), []string{"subscribe:AAA", "subscribe:BBB", "connect:tok2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	old.deliver(&models.MOrderBookUpdate{Symbol: "AAA", Bid: "9", Ask: "9", BidVolume: "9", AskVolume: "9"})
	h.frames.Tick()
	if got := h.quotes.Snapshot()["AAA"].Bid; got != models.NoData {
		t.Errorf("record must be reseeded and ignore the old session, bid %s", got)
	}

	h.quotes.SetToken("tok2")
	if len(h.clients) != 2 {
		t.Error("same token must not reconnect")
	}
}

func TestEmptySymbolSetTearsDown(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	first := h.client(t)

	h.quotes.SetSymbols(nil)

	if got, want := first.Calls(), []string{"subscribe:AAA", "connect:tok", "unsubscribe:AAA", "close"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if status := h.quotes.Status(); status.State != models.StateIdle {
		t.Errorf("expected IDLE status, got %s", status.State)
	}
	h.frames.Tick()
	if len(h.quotes.Snapshot()) != 0 {
		t.Errorf("expected empty snapshot, got %v", h.quotes.Snapshot())
	}

	h.quotes.SetSymbols([]string{"BBB"})
	if len(h.clients) != 2 {
		t.Fatal("a non-empty set must open a new connection")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	h.frames.Tick()
	published := len(h.published)
	client := h.client(t)

	h.receive(t, orderBook("AAA", "1", "2", ""))
	h.quotes.Close()
	h.quotes.Close()

	if client.State() != models.StateClosed {
		t.Error("connection not closed")
	}
	if h.frames.Pending() != 0 {
		t.Error("pending frame not cancelled")
	}
	h.frames.Tick()
	client.deliver(&models.MOrderBookUpdate{Symbol: "AAA", Bid: "5", Ask: "5"})
	h.quotes.SetSymbols([]string{"BBB"})

	if len(h.published) != published {
		t.Error("listener notified after close")
	}
	if len(h.clients) != 1 {
		t.Error("closed aggregator opened a connection")
	}
	if status := h.quotes.Status(); status.State != models.StateClosed {
		t.Errorf("expected CLOSED status, got %s", status.State)
	}
}

func TestRedialAfterDropResubscribesSymbols(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	client := h.client(t)

	client.drop()
	h.quotes.SetSymbols([]string{"AAA", "BBB"})

	if len(h.clients) != 1 {
		t.Fatalf("expected the idle client to be reused, got %d clients", len(h.clients))
	}
	want := []string{
		"subscribe:AAA", "connect:tok",
		"subscribe:BBB", "subscribe:AAA", "subscribe:BBB", "connect:tok",
	}
	if got := client.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected calls:\n got %v\nwant %v", got, want)
	}
}

func TestFlushPublishesPendingChanges(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})
	h.frames.Tick()
	published := len(h.published)

	h.quotes.Flush()
	if len(h.published) != published {
		t.Fatal("flush without changes must not publish")
	}

	h.receive(t, orderBook("AAA", "10", "11", ""))
	h.quotes.Flush()
	if len(h.published) != published+1 {
		t.Fatalf("expected an immediate publish, got %d", len(h.published)-published)
	}
	if got := h.quotes.Snapshot()["AAA"].Bid; got != "10" {
		t.Errorf("expected bid 10, got %q", got)
	}
	if h.frames.Tick() != 0 || len(h.published) != published+1 {
		t.Error("flush must consume the pending frame")
	}

	h.quotes.Close()
	h.quotes.Flush()
	if len(h.published) != published+1 {
		t.Error("flush after close must not publish")
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.quotes.SetToken("tok")
	h.quotes.SetSymbols([]string{"AAA"})

	status := h.quotes.Status()
	if status.StreamName != "test" || status.State != models.StateOpen || status.TransportType != "fake" {
		t.Errorf("unexpected status %+v", status)
	}
	if !reflect.DeepEqual(status.Symbols, []string{"AAA"}) {
		t.Errorf("unexpected symbols %v", status.Symbols)
	}
}
