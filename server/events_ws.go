package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/techagentng/civicpulse/services"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans lifecycle events out to websocket subscribers. Slow
// subscribers are dropped instead of blocking the publisher.
type EventHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*wsClient]struct{})}
}

var _ services.EventPublisher = (*EventHub)(nil)

func (h *EventHub) Publish(event services.ReportEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("error encoding %s event: %v", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			log.Println("dropping slow live-feed subscriber")
			h.removeLocked(client)
		}
	}
}

func (h *EventHub) add(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *EventHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *EventHub) removeLocked(client *wsClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *EventHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (s *Server) handleLiveReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		client := &wsClient{conn: conn, send: make(chan []byte, clientSendSize)}
		if !s.Hub.add(client) {
			conn.Close()
			return
		}
		go s.Hub.readPump(client)
		s.Hub.writePump(client)
	}
}

// readPump only watches for the peer going away; subscribers never send data.
func (h *EventHub) readPump(client *wsClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
