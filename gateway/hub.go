package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/metrics"
	"chatrelay/models"
)

// ErrConnectionClosed is returned by Emit when the target connection is gone.
var ErrConnectionClosed = errors.New("connection closed")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendBuffer     = 256
)

// Dispatcher receives the events of every connection served by the Hub.
type Dispatcher interface {
	HandleChat(ctx context.Context, connID string, req models.ChatRequest)
	HandleHistory(ctx context.Context, connID string, req models.HistoryRequest)
	HandleConnect(ctx context.Context, connID string)
	HandleDisconnect(ctx context.Context, connID string)
}

// Hub tracks live websocket connections and addresses them by id.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.RWMutex
	conns    map[string]*conn
	closed   bool
	inflight sync.WaitGroup
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewHub creates a hub accepting upgrades from allowedOrigins ("*" allows any).
func NewHub(logger zerolog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		logger: logger,
		conns:  make(map[string]*conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Emit queues an event for connID. Events for one connection are written in
// the order they were queued; a full queue blocks only the caller.
func (h *Hub) Emit(connID, event string, payload any) error {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return ErrConnectionClosed
	}

	data, err := json.Marshal(models.Frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(d Dispatcher) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ws, err := h.upgrader.Upgrade(gc.Writer, gc.Request, nil)
		if err != nil {
			h.logger.Warn().Err(err).Str("remote_addr", gc.Request.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		c := &conn{
			id:   uuid.NewString(),
			ws:   ws,
			send: make(chan []byte, sendBuffer),
			done: make(chan struct{}),
		}
		if !h.register(c) {
			ws.Close()
			return
		}

		// Requests outlive the socket so replies can still be committed.
		reqCtx := context.WithoutCancel(gc.Request.Context())

		go h.writePump(c)
		d.HandleConnect(reqCtx, c.id)
		h.readPump(reqCtx, c, d)
	}
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	metrics.ActiveConnections.Inc()
	return true
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		metrics.ActiveConnections.Dec()
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(ctx context.Context, c *conn, d Dispatcher) {
	defer func() {
		h.unregister(c)
		d.HandleDisconnect(ctx, c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn", c.id).Msg("read failed")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Debug().Err(err).Str("conn", c.id).Msg("malformed frame")
			continue
		}

		switch frame.Event {
		case models.EventChat:
			var req models.ChatRequest
			decodeData(frame.Data, &req)
			h.dispatch(func() { d.HandleChat(ctx, c.id, req) })
		case models.EventHistory:
			var req models.HistoryRequest
			decodeData(frame.Data, &req)
			h.dispatch(func() { d.HandleHistory(ctx, c.id, req) })
		default:
			metrics.EventsReceived.WithLabelValues("unknown").Inc()
			h.logger.Debug().Str("conn", c.id).Str("event", frame.Event).Msg("ignoring unknown event")
			continue
		}
		metrics.EventsReceived.WithLabelValues(frame.Event).Inc()
	}
}

// decodeData leaves v zero-valued on malformed payloads; the router then
// answers with the missing-session notice.
func decodeData(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

func (h *Hub) dispatch(fn func()) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.inflight.Add(1)
	h.mu.RUnlock()

	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error().Interface("panic", r).Msg("event handler panicked")
			}
		}()
		fn()
	}()
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close stops accepting connections and closes the open ones. In-flight
// requests keep running; use Wait to let them finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Wait blocks until every dispatched request has finished or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
