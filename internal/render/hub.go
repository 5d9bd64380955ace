package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/web3-frozen/eth-terminal/internal/metrics"
)

const (
	writeTimeout  = 5 * time.Second
	subscriberBuf = 16
)

// Message is the frame pushed to live subscribers.
type Message struct {
	Type  string `json:"type"`
	Tiles []Tile `json:"tiles"`
}

type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

// Hub pushes tile updates to WebSocket subscribers. New subscribers first
// receive every current tile.
type Hub struct {
	logger  *slog.Logger
	current func() []Tile
	origins []string

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func NewHub(logger *slog.Logger, current func() []Tile, origins []string) *Hub {
	return &Hub{
		logger:      logger,
		current:     current,
		origins:     origins,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Apply implements Target.
func (h *Hub) Apply(_ context.Context, t Tile) error {
	data, err := json.Marshal(Message{Type: "tiles", Tiles: []Tile{t}})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		select {
		case s.msgs <- data:
		default:
			go s.closeSlow()
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow() //nolint:errcheck

	ctx := c.CloseRead(r.Context())
	s := &subscriber{
		msgs: make(chan []byte, subscriberBuf),
		closeSlow: func() {
			c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with tiles") //nolint:errcheck
		},
	}
	h.add(s)
	defer h.remove(s)

	var initial []Tile
	if h.current != nil {
		initial = h.current()
	}
	data, err := json.Marshal(Message{Type: "tiles", Tiles: initial})
	if err != nil {
		return
	}
	if err := writeWithTimeout(ctx, c, data); err != nil {
		return
	}

	for {
		select {
		case msg := <-s.msgs:
			if err := writeWithTimeout(ctx, c, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
	metrics.WebsocketClients.Dec()
}

func writeWithTimeout(ctx context.Context, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, msg)
}
