package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const statsWriteTimeout = 5 * time.Second

// statsHub fans stats snapshots out to WebSocket subscribers.
type statsHub struct {
	clients  map[*statsClient]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// statsClient serializes writes to one connection.
type statsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newStatsHub(logger *slog.Logger) *statsHub {
	return &statsHub{
		clients: make(map[*statsClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // stats are read-only
			},
		},
		logger: logger,
	}
}

func (h *statsHub) add(conn *websocket.Conn) *statsClient {
	c := &statsClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func (h *statsHub) remove(c *statsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}

func (h *statsHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// run broadcasts a snapshot from source every interval until ctx is done.
func (h *statsHub) run(ctx context.Context, interval time.Duration, source StatsSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.count() > 0 {
				h.broadcast(source.Metrics())
			}
		}
	}
}

// broadcast sends v to all subscribers, dropping those that fail.
func (h *statsHub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("stats encode failed", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*statsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.logger.Debug("stats subscriber dropped", "error", err)
			h.remove(client)
		}
	}
}

func (h *statsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
}

func (c *statsClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *statsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(statsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
