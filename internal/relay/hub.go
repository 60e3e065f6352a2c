package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Hub is the websocket-backed Sender. It maps generated connection ids
// to live sockets; writes to one socket are serialized by a per-conn
// mutex so concurrent broadcasts never interleave frames.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
	log   *zap.Logger
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*conn),
		log:   log,
	}
}

// Register adds a socket to the hub and returns its opaque connection
// id.
func (h *Hub) Register(ws *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = &conn{ws: ws}
	h.mu.Unlock()
	h.log.Info("connection registered", zap.String("connectionId", id))
	return id
}

// Unregister closes and forgets a connection. Unknown ids are ignored.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	c := h.conns[connectionID]
	delete(h.conns, connectionID)
	h.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.ws.Close()
	h.log.Info("connection unregistered", zap.String("connectionId", connectionID))
}

// Count reports the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send writes one text frame to the connection. Returns
// ErrConnectionGone for unknown ids; write failures wrap the socket
// error.
func (h *Hub) Send(ctx context.Context, connectionID string, data []byte) error {
	h.mu.RLock()
	c := h.conns[connectionID]
	h.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("relay: send to %s: %w", connectionID, ErrConnectionGone)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("relay: send to %s: %w", connectionID, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay: send to %s: %w", connectionID, err)
	}
	return nil
}
