// Package notify pushes waiver events to live subscribers: websocket
// clients connected to the server and Discord channel webhooks.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/observability"
)

// HubConfig configures websocket delivery.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent (no pong) before it is dropped.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length; a client that falls this far behind is dropped.
	SendBuffer int
}

// DefaultHubConfig returns default websocket configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// Hub fans waiver events out to websocket subscribers. Each subscriber may
// filter by league with the "league" query parameter.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  atomic.Bool
}

type client struct {
	conn     *websocket.Conn
	leagueID string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

// close signals the write loop, which owns the connection, to shut it down.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a Hub.
func NewHub(config *HubConfig, logger logrus.FieldLogger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logger.WithField("component", "ws-hub"),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{
		conn:     conn,
		leagueID: r.URL.Query().Get("league"),
		send:     make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
	h.register(c)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetWSClients(n)
	h.log.WithFields(logrus.Fields{"league_id": c.leagueID, "clients": n}).Debug("subscriber connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		observability.SetWSClients(n)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues each event for the subscribers of its league. It never
// blocks on a slow subscriber; such subscribers are disconnected.
func (h *Hub) Publish(_ context.Context, events []domain.WaiverEvent) error {
	if h.closed.Load() {
		return nil
	}

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		var slow []*client
		h.mu.RLock()
		for c := range h.clients {
			if c.leagueID != "" && c.leagueID != e.LeagueID {
				continue
			}
			select {
			case c.send <- payload:
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()

		for _, c := range slow {
			h.log.WithField("league_id", c.leagueID).Warn("subscriber too slow, disconnecting")
			h.unregister(c)
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	observability.SetWSClients(0)
	return nil
}

// readLoop discards client messages and tracks liveness via pongs.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()
	defer h.unregister(c)

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
