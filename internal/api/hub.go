package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"itinera/internal/events"
	"itinera/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

// wsMessage is what a connected view receives after any change to the
// itinerary it watches.
type wsMessage struct {
	Type      string                       `json:"type"`
	Itinerary events.ItineraryEventPayload `json:"itinerary"`
	At        time.Time                    `json:"at"`
}

type wsClient struct {
	hub  *Hub
	room string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans itinerary events out to websocket clients. Rooms are keyed by
// itinerary id; owner and share views of the same itinerary join the same
// room.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	rooms    map[string]map[*wsClient]struct{}
	logger   *zerolog.Logger
}

func NewHub(allowedOrigins []string, logger *zerolog.Logger) *Hub {
	l := logger.With().Str("component", "ws_hub").Logger()
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		rooms:  make(map[string]map[*wsClient]struct{}),
		logger: &l,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Attach subscribes the hub to every itinerary event on bus.
func (h *Hub) Attach(bus *events.EventBus) {
	bus.SubscribeAll(h.HandleEvent)
}

// HandleEvent broadcasts the event to the room of its itinerary.
func (h *Hub) HandleEvent(e *events.Event) error {
	payload, err := e.Decode()
	if err != nil {
		h.logger.Warn().Err(err).Str("type", e.Type).Msg("Undecodable event")
		return err
	}

	msg, err := json.Marshal(wsMessage{Type: e.Type, Itinerary: payload, At: e.CreatedAt})
	if err != nil {
		return err
	}
	h.broadcast(payload.ItineraryID, msg)
	return nil
}

func (h *Hub) broadcast(room string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			// медленный клиент: пропускаем сообщение, клиент перечитает состояние
			h.logger.Debug().Str("room", room).Msg("Client send buffer full, dropping message")
		}
	}
}

// Clients returns the number of clients in room.
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Serve upgrades the request and joins the client to room until it
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &wsClient{hub: h, room: room, conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.register(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	if h.rooms[c.room] == nil {
		h.rooms[c.room] = make(map[*wsClient]struct{})
	}
	h.rooms[c.room][c] = struct{}{}
	h.mu.Unlock()
	metrics.WSClientConnected()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if clients, ok := h.rooms[c.room]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			metrics.WSClientDisconnected()
		}
		if len(clients) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for c := range clients {
			close(c.send)
			metrics.WSClientDisconnected()
		}
		delete(h.rooms, room)
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// клиенты ничего не отправляют, читаем только для control frames
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
