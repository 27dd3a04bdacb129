package server

import (
	"sync"
	"time"

	"quote-streamer/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	id   string
	hub  *QuoteServer
	conn *websocket.Conn
	send chan *models.MQuoteMessage

	mu     sync.RWMutex
	filter map[string]struct{} // nil means every symbol
}

func newClient(hub *QuoteServer, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		// buffered so the hub loop never waits on a socket write
		send: make(chan *models.MQuoteMessage, 64),
	}
}

// directMessage is a reply addressed to one client
type directMessage struct {
	client  *Client
	message *models.MQuoteMessage
}

// -----------------------------------------------------------------------------

func (c *Client) setFilter(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		c.filter[symbol] = struct{}{}
	}
}

// -----------------------------------------------------------------------------

// view narrows a message to the client's symbols. It returns nil for an
// update that touches none of them.
func (c *Client) view(message *models.MQuoteMessage) *models.MQuoteMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filter == nil {
		return message
	}

	quotes := make(models.MSnapshot, len(c.filter))
	for symbol := range c.filter {
		if record, ok := message.Quotes[symbol]; ok {
			quotes[symbol] = record
		}
	}

	var changed []string
	for _, symbol := range message.Changed {
		if _, ok := c.filter[symbol]; ok {
			changed = append(changed, symbol)
		}
	}
	if message.Type == models.MessageUpdate && len(changed) == 0 {
		return nil
	}

	return &models.MQuoteMessage{
		Type:      message.Type,
		Quotes:    quotes,
		Changed:   changed,
		Timestamp: message.Timestamp,
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
		c.hub.Logger.Debug("QuoteServer : client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Warning("QuoteServer : WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Warning("QuoteServer : write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
