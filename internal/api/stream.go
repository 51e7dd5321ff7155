package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/present"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

const (
	MessageSnapshot  = "snapshot"
	MessageModality  = "modality"
	MessageAggregate = "aggregate"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// StreamMessage is one frame on /api/v1/stream.
type StreamMessage struct {
	Type     string                        `json:"type"`
	Modality emotion.Modality              `json:"modality,omitempty"`
	Slot     *slots.Slot                   `json:"slot,omitempty"`
	Slots    map[emotion.Modality]SlotView `json:"slots,omitempty"`
	View     present.View                  `json:"view"`
	Detail   string                        `json:"detail,omitempty"`
	At       time.Time                     `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans stream messages out to every connected dashboard. Slow clients
// are dropped rather than allowed to stall the broadcaster.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{clients: make(map[*wsClient]struct{}), logger: logger}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast never blocks.
func (h *Hub) Broadcast(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal stream message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow stream client", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Serve upgrades the request and streams until the client goes away. hello
// is sent before any broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, hello StreamMessage) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	first, err := json.Marshal(hello)
	if err != nil {
		conn.Close()
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- first

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("stream client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// readPump discards inbound frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Info("stream client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Snapshot()
	views := make(map[emotion.Modality]SlotView, len(emotion.Modalities))
	for _, m := range emotion.Modalities {
		views[m] = s.slotView(snap.Slot(m))
	}
	s.hub.Serve(w, r, StreamMessage{
		Type:  MessageSnapshot,
		Slots: views,
		View:  s.adapter.FromResult(nil),
		At:    s.now(),
	})
}
