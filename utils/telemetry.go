package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPongWait   = 10 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendDepth  = 64
)

// TelemetryHub fans JSON messages out to websocket clients. A client that
// cannot keep up loses messages instead of stalling the control loop.
type TelemetryHub struct {
	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	upgrader websocket.Upgrader
	log      *Logger
	dropped  uint64
	closed   bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewTelemetryHub creates an empty hub. log may be nil.
func NewTelemetryHub(log *Logger) *TelemetryHub {
	return &TelemetryHub{
		clients: map[*wsClient]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeWS upgrades the request and registers the client.
func (h *TelemetryHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf(WARN, "websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendDepth)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logf(INFO, "telemetry client %s connected (%d total)", r.RemoteAddr, n)

	go h.writePump(c)
	go h.readPump(c)
}

// Handler returns a mux serving the hub on /ws.
func (h *TelemetryHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	return mux
}

// Broadcast marshals v once and queues it for every client.
func (h *TelemetryHub) Broadcast(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *TelemetryHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded for slow clients.
func (h *TelemetryHub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close disconnects every client.
func (h *TelemetryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *TelemetryHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func (h *TelemetryHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards client messages and notices disconnects.
func (h *TelemetryHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *TelemetryHub) logf(level LogLevel, msg string, args ...any) {
	if h.log != nil {
		h.log.log(level, msg, args...)
	}
}
