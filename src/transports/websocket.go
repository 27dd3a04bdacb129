package transports

import (
	"context"
	"sync"
	"time"

	"quote-streamer/src/helpers"
	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"
	"quote-streamer/src/utils"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 5 * time.Second

// -----------------------------------------------------------------------------

// WebSocketClient implements IConnectionClient using Gorilla WebSocket.
// At most one connection attempt is live per instance.
type WebSocketClient struct {
	name    string
	config  *models.MStreamConfig
	logger  *logger.Logger
	broker  interfaces.IBroker
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	// all fields below are guarded by mu
	mu             sync.Mutex
	state          models.MConnectionState
	conn           *websocket.Conn
	connCtx        context.Context
	connCancel     context.CancelFunc
	generation     uint64
	token          string
	onMessage      func(models.MInbound)
	pending        []string // queued subscribes, first-request order
	active         []string // symbols currently wanted, for resubscription
	closeRequested bool
	attempts       int
	reconnectTimer *time.Timer

	// outbound frames for the open connection, drained by writePump
	outbox [][]byte
	wake   chan struct{}
}

// -----------------------------------------------------------------------------

// NewWebSocketClient creates a new WebSocket client speaking the broker's wire format
func NewWebSocketClient(config *models.MStreamConfig, logger *logger.Logger, broker interfaces.IBroker) *WebSocketClient {
	limit := rate.Inf
	if config.SendRate > 0 {
		limit = rate.Limit(config.SendRate)
	}
	burst := config.SendBurst
	if burst <= 0 {
		burst = 1
	}

	return &WebSocketClient{
		name:    config.Name,
		config:  config,
		logger:  logger,
		broker:  broker,
		dialer:  &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		limiter: rate.NewLimiter(limit, burst),
		state:   models.StateIdle,
	}
}

// -----------------------------------------------------------------------------

// Connect starts connecting in the background and returns immediately.
// It is a no-op while connecting or open. A missing endpoint or an
// unbuildable URL is logged and returned; no connection exists afterwards.
func (w *WebSocketClient) Connect(token string, onMessage func(models.MInbound)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == models.StateConnecting || w.state == models.StateOpen {
		return nil
	}

	if w.config.Endpoint == "" {
		w.logger.Error("%s : market stream endpoint is not configured", w.name)
		return helpers.NewConfigurationError("market stream endpoint is not configured", nil)
	}

	endpoint, err := BuildStreamURL(w.config.Endpoint, w.config.PageScheme, token)
	if err != nil {
		w.logger.Error("%s : failed to build stream URL: %v", w.name, err)
		return helpers.NewTransportError("failed to build stream URL", err)
	}

	if w.reconnectTimer != nil {
		w.reconnectTimer.Stop()
		w.reconnectTimer = nil
	}

	w.generation++
	w.state = models.StateConnecting
	w.token = token
	w.onMessage = onMessage
	w.closeRequested = false
	w.connCtx, w.connCancel = context.WithCancel(context.Background())

	w.logger.Info("%s : connecting to %s", w.name, utils.MaskToken(endpoint))
	go w.dial(w.connCtx, w.generation, endpoint)
	return nil
}

// -----------------------------------------------------------------------------

// Subscribe queues the subscribe frame for sending when open, otherwise queues
// the symbol for replay. It never waits on the outbound rate limiter.
func (w *WebSocketClient) Subscribe(symbol string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.active = appendUnique(w.active, symbol)

	if w.state != models.StateOpen {
		w.pending = appendUnique(w.pending, symbol)
		return
	}

	frame, err := w.broker.AddSubscription(symbol)
	if err != nil {
		w.logger.Error("%s : failed to build subscription for %s: %v", w.name, symbol, err)
		return
	}
	w.enqueueLocked(frame)
}

// -----------------------------------------------------------------------------

// Unsubscribe queues the unsubscribe frame when open and always drops a queued subscribe
func (w *WebSocketClient) Unsubscribe(symbol string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.active = remove(w.active, symbol)
	w.pending = remove(w.pending, symbol)

	if w.state != models.StateOpen {
		return
	}

	frame, err := w.broker.RemoveSubscription(symbol)
	if err != nil {
		w.logger.Error("%s : failed to build unsubscription for %s: %v", w.name, symbol, err)
		return
	}
	w.enqueueLocked(frame)
}

// -----------------------------------------------------------------------------

// Close terminates the connection and clears queued intents. While the
// handshake is in flight the close is deferred until it completes. Idempotent.
func (w *WebSocketClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = nil
	w.active = nil
	if w.reconnectTimer != nil {
		w.reconnectTimer.Stop()
		w.reconnectTimer = nil
	}

	switch w.state {
	case models.StateConnecting:
		w.closeRequested = true
		w.logger.Info("%s : close requested during handshake, deferring until open", w.name)
	case models.StateOpen:
		w.closeConnLocked()
		w.state = models.StateClosed
		w.logger.Info("%s : WebSocket disconnected", w.name)
	case models.StateIdle:
		w.state = models.StateClosed
	}
}

// -----------------------------------------------------------------------------

// State returns the lifecycle state
func (w *WebSocketClient) State() models.MConnectionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// -----------------------------------------------------------------------------

// PendingCount returns the number of queued subscribes
func (w *WebSocketClient) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// -----------------------------------------------------------------------------

// GetName returns the client name
func (w *WebSocketClient) GetName() string {
	return w.name
}

// -----------------------------------------------------------------------------

// GetType returns the transport type
func (w *WebSocketClient) GetType() string {
	return "websocket"
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// dial performs the handshake for attempt gen and handles the open event
func (w *WebSocketClient) dial(ctx context.Context, gen uint64, endpoint string) {
	conn, _, err := w.dialer.DialContext(ctx, endpoint, nil)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		w.logger.Error("%s : failed to connect: %v", w.name, err)
		w.state = models.StateIdle
		if w.closeRequested {
			w.closeRequested = false
			w.state = models.StateClosed
			return
		}
		w.scheduleReconnectLocked()
		return
	}

	if w.closeRequested {
		// close raced the handshake: finish it now with a normal closure
		w.closeRequested = false
		w.conn = conn
		w.closeConnLocked()
		w.state = models.StateClosed
		w.logger.Info("%s : deferred close completed after handshake", w.name)
		return
	}

	w.conn = conn
	w.state = models.StateOpen
	w.attempts = 0
	w.outbox = nil
	w.wake = make(chan struct{}, 1)
	w.logger.Info("%s : WebSocket connected", w.name)

	replay := w.pending
	w.pending = nil
	for _, symbol := range replay {
		frame, err := w.broker.AddSubscription(symbol)
		if err != nil {
			w.logger.Error("%s : failed to build subscription for %s: %v", w.name, symbol, err)
			continue
		}
		w.enqueueLocked(frame)
	}
	if len(replay) > 0 {
		w.logger.Info("%s : replayed %d queued subscriptions", w.name, len(replay))
	}

	go w.writePump(ctx, gen, conn, w.wake)
	go w.readLoop(gen, conn, w.onMessage)
}

// -----------------------------------------------------------------------------

// readLoop decodes frames in arrival order and hands them to onMessage
func (w *WebSocketClient) readLoop(gen uint64, conn *websocket.Conn, onMessage func(models.MInbound)) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			w.handleDrop(gen, conn, err)
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		inbound, err := w.broker.ParseMessage(message)
		if err != nil {
			w.logger.Warning("%s : dropping malformed frame: %v", w.name, err)
			continue
		}

		if !w.isCurrent(gen, conn) {
			return
		}
		if onMessage != nil {
			onMessage(inbound)
		}
	}
}

// -----------------------------------------------------------------------------

// writePump sends queued frames in order, one per limiter token. It owns all
// data writes on conn and exits once the connection is closed or replaced.
func (w *WebSocketClient) writePump(ctx context.Context, gen uint64, conn *websocket.Conn, wake <-chan struct{}) {
	for {
		frame, live := w.nextFrame(gen, conn)
		if !live {
			return
		}
		if frame == nil {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		if !w.isCurrent(gen, conn) {
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			w.logger.Error("%s : failed to send frame: %v", w.name, err)
			w.handleDrop(gen, conn, err)
			return
		}
	}
}

// -----------------------------------------------------------------------------

// nextFrame pops the oldest queued frame. live is false once conn is no
// longer the current connection.
func (w *WebSocketClient) nextFrame(gen uint64, conn *websocket.Conn) (frame []byte, live bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation || w.conn != conn {
		return nil, false
	}
	if len(w.outbox) == 0 {
		return nil, true
	}
	frame = w.outbox[0]
	w.outbox[0] = nil
	w.outbox = w.outbox[1:]
	return frame, true
}

// -----------------------------------------------------------------------------

// handleDrop resets state after an unexpected closure or a read or write error
func (w *WebSocketClient) handleDrop(gen uint64, conn *websocket.Conn, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation || w.conn != conn {
		// closed on purpose
		return
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		w.logger.Error("%s : connection closed unexpectedly: %v", w.name, err)
	} else {
		w.logger.Warning("%s : connection closed: %v", w.name, err)
	}

	conn.Close()
	w.conn = nil
	w.outbox = nil
	w.connCancel()
	w.state = models.StateIdle

	if w.config.Reconnect.Enabled {
		w.pending = append([]string(nil), w.active...)
		w.scheduleReconnectLocked()
	}
}

// -----------------------------------------------------------------------------

// scheduleReconnectLocked arms the backoff timer when the policy allows it
func (w *WebSocketClient) scheduleReconnectLocked() {
	policy := w.config.Reconnect
	if !policy.Enabled {
		return
	}
	if policy.MaxAttempts > 0 && w.attempts >= policy.MaxAttempts {
		w.logger.Error("%s : giving up after %d reconnect attempts", w.name, w.attempts)
		return
	}

	delay := helpers.BackoffDelay(w.attempts, policy.BaseDelay, policy.MaxDelay)
	w.attempts++
	gen := w.generation

	w.logger.Info("%s : reconnecting in %v (attempt %d)", w.name, delay, w.attempts)
	w.reconnectTimer = time.AfterFunc(delay, func() { w.reconnect(gen) })
}

// -----------------------------------------------------------------------------

func (w *WebSocketClient) reconnect(gen uint64) {
	w.mu.Lock()
	if gen != w.generation || w.state != models.StateIdle {
		w.mu.Unlock()
		return
	}
	w.reconnectTimer = nil
	token, onMessage := w.token, w.onMessage
	w.mu.Unlock()

	if err := w.Connect(token, onMessage); err != nil {
		w.logger.Error("%s : reconnect aborted: %v", w.name, err)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// enqueueLocked appends a text frame for the write pump of the open connection
func (w *WebSocketClient) enqueueLocked(frame []byte) {
	if w.conn == nil {
		return
	}

	w.outbox = append(w.outbox, frame)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------

// closeConnLocked sends a normal-closure frame and releases the socket
func (w *WebSocketClient) closeConnLocked() {
	if w.connCancel != nil {
		w.connCancel()
	}
	if w.conn == nil {
		return
	}

	w.outbox = nil
	closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := w.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeWait)); err != nil {
		w.logger.Warning("%s : failed to send close frame: %v", w.name, err)
	}
	if err := w.conn.Close(); err != nil {
		w.logger.Warning("%s : failed to close connection: %v", w.name, err)
	}
	w.conn = nil
}

// -----------------------------------------------------------------------------

func (w *WebSocketClient) isCurrent(gen uint64, conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.generation && w.conn == conn
}

// -----------------------------------------------------------------------------

func appendUnique(list []string, symbol string) []string {
	for _, s := range list {
		if s == symbol {
			return list
		}
	}
	return append(list, symbol)
}

// -----------------------------------------------------------------------------

func remove(list []string, symbol string) []string {
	for i, s := range list {
		if s == symbol {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
