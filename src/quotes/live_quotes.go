package quotes

import (
	"sync"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
	"quote-streamer/src/utils"
)

// ClientFactory creates the connection client owned by one session
type ClientFactory func() interfaces.IConnectionClient

// SnapshotListener receives every published snapshot and the records changed in it
type SnapshotListener func(snapshot models.MSnapshot, changed []models.MQuoteRecord)

// -----------------------------------------------------------------------------
// LiveQuotes keeps one Quote Record per subscribed symbol, merges inbound
// frames into a private buffer and publishes shallow copies of it at most
// once per frame.
// -----------------------------------------------------------------------------

type LiveQuotes struct {
	name      string
	endpoint  string
	logger    *logger.Logger
	newClient ClientFactory
	scheduler *utils.FrameScheduler

	mu        sync.Mutex
	client    interfaces.IConnectionClient
	transport string
	session   uint64 // bumped on teardown; frames from older sessions are ignored
	token     string
	symbols   []string
	buffer    map[string]models.MQuoteRecord
	dirty     map[string]struct{}
	published models.MSnapshot
	listeners []SnapshotListener
	closed    bool

	// serializes flushes so listeners see snapshots in publish order
	publishMu sync.Mutex
}

// -----------------------------------------------------------------------------

// NewLiveQuotes creates an aggregator. No connection is made until both a
// token and a non-empty symbol set are supplied.
func NewLiveQuotes(config *models.MStreamConfig, logger *logger.Logger, frames utils.FrameSource, newClient ClientFactory) *LiveQuotes {
	l := &LiveQuotes{
		name:      config.Name,
		endpoint:  utils.MaskToken(config.Endpoint),
		logger:    logger,
		newClient: newClient,
		buffer:    make(map[string]models.MQuoteRecord),
		dirty:     make(map[string]struct{}),
		published: models.MSnapshot{},
	}
	l.scheduler = utils.NewFrameScheduler(frames, l.flush)
	return l
}

// -----------------------------------------------------------------------------

// SetToken sets the session token. A different token replaces the whole
// session: the connection is closed, records are reseeded and every current
// symbol is subscribed again on a fresh connection.
func (l *LiveQuotes) SetToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || token == l.token {
		return
	}
	l.token = token

	if l.client != nil {
		l.logger.Info("%s : token changed, restarting session", l.name)
		l.teardownLocked()
		for symbol := range l.buffer {
			l.buffer[symbol] = models.NewQuoteRecord(symbol)
			l.dirty[symbol] = struct{}{}
		}
		l.scheduler.Request()
	}

	l.ensureConnectedLocked()
}

// -----------------------------------------------------------------------------

// SetSymbols replaces the subscription set. Only the difference against the
// previous set reaches the connection; an empty set closes it.
func (l *LiveQuotes) SetSymbols(symbols []string) {
	next := utils.UniqueSymbols(symbols)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	nextSet := make(map[string]struct{}, len(next))
	for _, symbol := range next {
		nextSet[symbol] = struct{}{}
	}
	prevSet := make(map[string]struct{}, len(l.symbols))
	for _, symbol := range l.symbols {
		prevSet[symbol] = struct{}{}
	}

	mutated := false
	for _, symbol := range l.symbols {
		if _, ok := nextSet[symbol]; ok {
			continue
		}
		delete(l.buffer, symbol)
		delete(l.dirty, symbol)
		if l.client != nil {
			l.client.Unsubscribe(symbol)
		}
		mutated = true
	}
	for _, symbol := range next {
		if _, ok := prevSet[symbol]; ok {
			continue
		}
		l.buffer[symbol] = models.NewQuoteRecord(symbol)
		l.dirty[symbol] = struct{}{}
		if l.client != nil {
			l.client.Subscribe(symbol)
		}
		mutated = true
	}
	l.symbols = next

	if len(next) == 0 {
		if l.client != nil {
			l.logger.Info("%s : symbol set is empty, closing connection", l.name)
			l.teardownLocked()
		}
	} else {
		l.ensureConnectedLocked()
	}

	if mutated {
		l.scheduler.Request()
	}
}

// -----------------------------------------------------------------------------

// Snapshot returns the latest published snapshot. Callers must not modify it.
func (l *LiveQuotes) Snapshot() models.MSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.published
}

// -----------------------------------------------------------------------------

// Symbols returns the current subscription set
func (l *LiveQuotes) Symbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.symbols...)
}

// -----------------------------------------------------------------------------

// OnSnapshot registers a listener for published snapshots
func (l *LiveQuotes) OnSnapshot(fn func(snapshot models.MSnapshot, changed []models.MQuoteRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.listeners = append(l.listeners, fn)
}

// -----------------------------------------------------------------------------

// Status returns the runtime status of the stream
func (l *LiveQuotes) Status() *models.MStreamStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := &models.MStreamStatus{
		StreamName:    l.name,
		State:         models.StateIdle,
		TransportType: l.transport,
		Endpoint:      l.endpoint,
		Symbols:       append([]string(nil), l.symbols...),
	}
	if l.closed {
		status.State = models.StateClosed
	}
	if l.client != nil {
		status.State = l.client.State()
		status.Pending = l.client.PendingCount()
	}
	return status
}

// -----------------------------------------------------------------------------

// Flush publishes pending changes now instead of on the next frame
func (l *LiveQuotes) Flush() {
	if l.scheduler.Pending() {
		l.scheduler.Flush()
	}
}

// -----------------------------------------------------------------------------

// Close closes the connection, cancels the pending frame and stops all
// further notifications. Idempotent.
func (l *LiveQuotes) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	l.teardownLocked()
	l.scheduler.Stop()
	l.listeners = nil
	l.logger.Info("%s : live quotes closed", l.name)
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// ensureConnectedLocked opens a session once a token and symbols exist
func (l *LiveQuotes) ensureConnectedLocked() {
	if l.token == "" || len(l.symbols) == 0 {
		return
	}

	if l.client == nil {
		l.client = l.newClient()
		l.transport = l.client.GetType()
		for _, symbol := range l.symbols {
			l.client.Subscribe(symbol)
		}
	} else if l.client.State() == models.StateIdle {
		// a dropped connection only replays what was queued while it was down
		for _, symbol := range l.symbols {
			l.client.Subscribe(symbol)
		}
	}

	session := l.session
	err := l.client.Connect(l.token, func(msg models.MInbound) {
		l.handleMessage(session, msg)
	})
	if err != nil {
		l.logger.Warning("%s : quotes will not update: %v", l.name, err)
	}
}

// -----------------------------------------------------------------------------

// teardownLocked closes the current connection and invalidates its callbacks
func (l *LiveQuotes) teardownLocked() {
	l.session++
	if l.client == nil {
		return
	}
	l.client.Close()
	l.client = nil
}

// -----------------------------------------------------------------------------

// handleMessage merges one inbound frame into the buffer
func (l *LiveQuotes) handleMessage(session uint64, msg models.MInbound) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || session != l.session {
		return
	}

	switch m := msg.(type) {
	case *models.MSubscriptionAck:
		record, ok := l.buffer[m.Symbol]
		if !ok {
			return
		}
		l.buffer[m.Symbol] = mergeDaily(record, m.Daily)
		l.dirty[m.Symbol] = struct{}{}

	case *models.MOrderBookUpdate:
		record, ok := l.buffer[m.Symbol]
		if !ok {
			return
		}
		l.buffer[m.Symbol] = applyOrderBook(record, m)
		l.dirty[m.Symbol] = struct{}{}

	case *models.MUnknown:
		l.logger.Debug("%s : ignoring unrecognized frame: %s", l.name, m.Raw)
		return

	default:
		return
	}

	l.scheduler.Request()
}

// -----------------------------------------------------------------------------

// flush publishes a shallow copy of the buffer and notifies listeners
func (l *LiveQuotes) flush() {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	snapshot := make(models.MSnapshot, len(l.buffer))
	for symbol, record := range l.buffer {
		snapshot[symbol] = record
	}

	changed := make([]models.MQuoteRecord, 0, len(l.dirty))
	for _, symbol := range l.symbols {
		if _, ok := l.dirty[symbol]; ok {
			changed = append(changed, l.buffer[symbol])
		}
	}
	l.dirty = make(map[string]struct{})
	l.published = snapshot
	listeners := append([]SnapshotListener(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot, changed)
	}
}
