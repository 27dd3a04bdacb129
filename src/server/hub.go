package server

import (
	"encoding/json"
	"net/http"
	"time"

	"quote-streamer/src/models"
	"quote-streamer/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *QuoteServer) handleWebsockets() {
	defer close(s.hubDone)

	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnections(len(s.clients))

			// Send initial state on connect
			client.send <- &models.MQuoteMessage{
				Type:      models.MessageInitial,
				Quotes:    s.stream.Snapshot(),
				Timestamp: time.Now().UnixMilli(),
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.setConnections(len(s.clients))
			}

		case direct := <-s.direct:
			if _, ok := s.clients[direct.client]; !ok {
				continue
			}
			select {
			case direct.client.send <- direct.message:
			default:
			}

		case message := <-s.broadcast:
			for client := range s.clients {
				view := client.view(message)
				if view == nil {
					continue
				}
				select {
				case client.send <- view:
				default:
					// slow consumer: drop it rather than block the hub
					s.Logger.Warning("QuoteServer : dropping slow WebSocket client")
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.setConnections(len(s.clients))

		case <-s.quit:
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.setConnections(0)
			return
		}
	}
}

// -----------------------------------------------------------------------------

// Broadcast queues a published snapshot for every dashboard client.
// Matches the aggregator's snapshot listener signature.
func (s *QuoteServer) Broadcast(snapshot models.MSnapshot, changed []models.MQuoteRecord) {
	symbols := make([]string, len(changed))
	for i, record := range changed {
		symbols[i] = record.Symbol
	}

	message := &models.MQuoteMessage{
		Type:      models.MessageUpdate,
		Quotes:    snapshot,
		Changed:   symbols,
		Timestamp: time.Now().UnixMilli(),
	}

	select {
	case s.broadcast <- message:
	case <-s.quit:
	default:
		s.Logger.Warning("QuoteServer : broadcast queue full, dropping update")
	}
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) setConnections(n int) {
	s.connMutex.Lock()
	s.connections = n
	s.connMutex.Unlock()
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("QuoteServer : failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)
	s.Logger.Debug("QuoteServer : client %s connected from %s", client.id, c.ClientIP())

	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command and answers with the filtered snapshot
func (s *QuoteServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Warning("QuoteServer : failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	client.setFilter(utils.UniqueSymbols(cmd.Symbols))

	response := client.view(&models.MQuoteMessage{
		Type:      models.MessageInitial,
		Quotes:    s.stream.Snapshot(),
		Timestamp: time.Now().UnixMilli(),
	})

	select {
	case s.direct <- directMessage{client: client, message: response}:
	case <-s.quit:
	}
}
