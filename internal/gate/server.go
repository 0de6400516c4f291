package gate

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections from barrier units to WebSockets and
// attaches them to the hub.
type Server struct {
	hub          *Hub
	writeTimeout time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewServer builds ws attach endpoint.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		hub:          hub,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for GET /gate/ws?zone=A.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	zone := r.URL.Query().Get("zone")
	if zone == "" {
		http.Error(w, "zone is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newBarrierSocket(ws, s.writeTimeout)
	s.hub.Attach(zone, conn)
	s.logger.Info("barrier unit connected", zap.String("zone", zone))

	go s.readLoop(zone, conn)
}

// readLoop consumes frames from the barrier unit. Units only send control
// frames and occasional status blobs; both are discarded, the loop exists to
// keep pong handling alive and to notice disconnects.
func (s *Server) readLoop(zone string, conn *barrierSocket) {
	defer func() {
		s.hub.Detach(zone, conn)
		_ = conn.Close()
		s.logger.Info("barrier unit disconnected", zap.String("zone", zone))
	}()

	conn.ws.SetReadLimit(4 * 1024)
	conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// barrierSocket wraps *websocket.Conn with write deadlines and a write lock,
// implementing BarrierConn.
type barrierSocket struct {
	mu           sync.Mutex
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func newBarrierSocket(ws *websocket.Conn, writeTimeout time.Duration) *barrierSocket {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &barrierSocket{ws: ws, writeTimeout: writeTimeout}
}

func (c *barrierSocket) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *barrierSocket) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.PingMessage, []byte("ping"))
}

func (c *barrierSocket) Close() error {
	return c.ws.Close()
}
