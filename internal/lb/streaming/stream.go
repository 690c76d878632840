package streaming

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trafficshape/internal/lb/registry"
)

const (
	defaultPushInterval = 500 * time.Millisecond
	minPushInterval     = 50 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes state frames to every subscribed WebSocket client on a
// fixed interval (spec.md §4.6). Connections register and deregister
// themselves; one client's write error never affects another's.
type Hub struct {
	reg      *registry.Registry
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(reg *registry.Registry, interval time.Duration, logger *log.Logger) *Hub {
	if interval < minPushInterval {
		interval = defaultPushInterval
	}
	return &Hub{
		reg:      reg,
		interval: interval,
		logger:   logger,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and pushes one frame immediately,
// then joins the hub's periodic broadcast until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("stream upgrade failed: %v", err)
		}
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	h.sendTo(conn, NewFrame(Snapshot(h.reg)))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Run broadcasts a fresh snapshot to every connected client on each
// tick until ctx's done channel closes.
func (h *Hub) Run(done <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.broadcast()
		}
	}
}

func (h *Hub) broadcast() {
	if h.clientCount() == 0 {
		return
	}
	frame := NewFrame(Snapshot(h.reg))

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.sendTo(c, frame)
	}
}

func (h *Hub) sendTo(conn *websocket.Conn, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
