package ticker

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PriceUpdate is one broadcast message on the live price stream
type PriceUpdate struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Change24h  *float64  `json:"change24h,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

type connection struct {
	id   string
	conn *websocket.Conn
	send chan PriceUpdate
}

// Hub fans price updates out to all connected subscribers. Slow consumers
// are dropped rather than allowed to stall the broadcast.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*connection

	broadcast  chan PriceUpdate
	register   chan *connection
	unregister chan *connection
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger:      logger,
		connections: make(map[string]*connection),
		broadcast:   make(chan PriceUpdate, sendBuffer),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.id] = conn
			h.mu.Unlock()
			h.logger.Debug("ticker subscriber connected", zap.String("connection_id", conn.id))

		case conn := <-h.unregister:
			h.drop(conn)

		case update := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*connection, 0, len(h.connections))
			for _, c := range h.connections {
				conns = append(conns, c)
			}
			h.mu.RUnlock()

			for _, c := range conns {
				select {
				case c.send <- update:
				default:
					h.drop(c)
				}
			}

		case <-h.stop:
			h.mu.Lock()
			for _, c := range h.connections {
				close(c.send)
				c.conn.Close()
			}
			h.connections = make(map[string]*connection)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(conn *connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn.id]; ok {
		delete(h.connections, conn.id)
		close(conn.send)
	}
	h.mu.Unlock()
}

// Publish queues an update for all subscribers; never blocks the caller
func (h *Hub) Publish(update PriceUpdate) {
	select {
	case h.broadcast <- update:
	case <-h.stop:
	default:
		h.logger.Warn("ticker broadcast queue full, dropping update",
			zap.String("instrument", update.Instrument))
	}
}

// Subscribers returns the current connection count
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Stop closes all connections and stops the broadcast loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// HandleConnection upgrades the request and serves the price stream on it
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &connection{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan PriceUpdate, sendBuffer),
	}
	select {
	case h.register <- conn:
	case <-h.stop:
		ws.Close()
		return fmt.Errorf("price stream is shut down")
	}

	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

// readPump discards inbound frames; the stream is one-way but reads are
// needed to process pongs and detect closure.
func (h *Hub) readPump(conn *connection) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.stop:
		}
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(512)
	conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("ticker subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *connection) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case update, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteJSON(update); err != nil {
				return
			}

		case <-ping.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
