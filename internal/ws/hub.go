package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/triarb/triarb-api/internal/events"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection bound to an
// authenticated client ID. Each client only receives events for
// its own wallet and trade attempts.
type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// Hub fans events from the in-process event bus out to connected
// WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        *events.Bus
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewHub creates a hub bridging the event bus to WebSocket clients.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     log.With().Str("service", "ws").Logger(),
	}
}

// Run starts the hub's main loop. It should be called in a goroutine
// and exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	eventCh, cancel := h.bus.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			// Closing done unblocks any connection still trying to
			// register or unregister after the loop exits.
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", c.clientID).
				Int("total_clients", h.clientCount()).
				Msg("Client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", c.clientID).
				Int("total_clients", h.clientCount()).
				Msg("Client disconnected")

		case event := <-eventCh:
			h.dispatch(event)
		}
	}
}

// dispatch routes one bus event to every connection owned by the
// event's client ID. Events without a client ID go to everyone.
func (h *Hub) dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if event.ClientID != "" && event.ClientID != c.clientID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("client_id", c.clientID).Msg("Dropping event for slow client")
		}
	}
}

// HandleWS upgrades the request to a WebSocket connection. The route
// sits behind JWT auth so the client ID is already in the context.
// GET /api/v1/ws
func (h *Hub) HandleWS(c *gin.Context) {
	clientID := c.GetString("clientID")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	cl := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		clientID: clientID,
	}

	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains the connection so close frames and pongs are
// processed. Inbound payloads are ignored, the stream is one-way.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.clientID).Msg("Unexpected close")
			}
			return
		}
	}
}

// writePump pumps hub messages to the connection and sends periodic
// pings for keepalive.
func (c *client) writePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
