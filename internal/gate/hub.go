package gate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BarrierConn is the subset of a barrier unit's websocket connection the hub uses.
type BarrierConn interface {
	WriteJSON(v interface{}) error
	Ping() error
	Close() error
}

// OpenCommand is pushed to a barrier unit when the engine grants passage.
type OpenCommand struct {
	Command  string    `json:"command"`
	Zone     string    `json:"zone"`
	IssuedAt time.Time `json:"issued_at"`
}

// Hub tracks connected barrier units, one per zone, and implements Controller
// by pushing open commands to them. A zone with no connected unit drops the
// signal: the engine's decision stands regardless of actuator reachability.
type Hub struct {
	mu           sync.RWMutex
	barriers     map[string]BarrierConn
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds barrier connection hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		barriers:     make(map[string]BarrierConn),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Attach registers a barrier unit for a zone, replacing any previous unit.
func (h *Hub) Attach(zone string, conn BarrierConn) {
	h.mu.Lock()
	previous := h.barriers[zone]
	h.barriers[zone] = conn
	h.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
		h.logger.Info("replaced barrier connection", zap.String("zone", zone))
	}
}

// Detach removes the barrier unit for a zone if it is still the given one.
func (h *Hub) Detach(zone string, conn BarrierConn) {
	h.mu.Lock()
	if h.barriers[zone] == conn {
		delete(h.barriers, zone)
	}
	h.mu.Unlock()
}

// Open pushes an open command to the zone's barrier unit.
func (h *Hub) Open(zone string) {
	h.mu.RLock()
	conn := h.barriers[zone]
	h.mu.RUnlock()

	if conn == nil {
		h.logger.Warn("no barrier unit connected, dropping open signal", zap.String("zone", zone))
		return
	}

	cmd := OpenCommand{Command: "open", Zone: zone, IssuedAt: time.Now().UTC()}
	if err := conn.WriteJSON(cmd); err != nil {
		h.logger.Warn("barrier write failed", zap.String("zone", zone), zap.Error(err))
		h.Detach(zone, conn)
		_ = conn.Close()
	}
}

// Start runs the keepalive ping loop until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for zone, conn := range h.barriers {
				if err := conn.Ping(); err != nil {
					h.logger.Debug("barrier ping failed", zap.String("zone", zone), zap.Error(err))
				}
			}
			h.mu.RUnlock()
		}
	}
}
