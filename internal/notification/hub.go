package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"rapidresponse/internal/common/config"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"

	"github.com/gorilla/websocket"
)

// Conn is the write side of a live connection. *websocket.Conn implements it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var (
	errNotConnected     = errors.New("client not connected")
	errQueueFull        = errors.New("live queue full")
	errConnectionClosed = errors.New("live connection closed")
)

// outbound is one queued frame. written, when set, receives the result of the write.
type outbound struct {
	data    []byte
	written chan error
}

type client struct {
	id        string
	conn      Conn
	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks one live connection per client id. Each connection has its own buffered
// queue and writer goroutine, so a slow client only ever loses its own messages.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       logger.Logger
}

func NewHub(cfg config.LiveConfig, log logger.Logger) *Hub {
	h := &Hub{
		clients:      make(map[string]*client),
		sendBuffer:   cfg.SendBuffer,
		writeTimeout: config.GetDuration(cfg.WriteTimeout),
		pingInterval: config.GetDuration(cfg.PingInterval),
		logger:       log.WithFields(map[string]interface{}{"component": "live_hub"}),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = 64
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = 10 * time.Second
	}
	if h.pingInterval <= 0 {
		h.pingInterval = 30 * time.Second
	}
	return h
}

// Connect registers conn for clientID, closing any connection it replaces. The returned
// func unregisters this connection only; it is safe to call more than once.
func (h *Hub) Connect(clientID string, conn Conn) (release func()) {
	c := &client{
		id:   clientID,
		conn: conn,
		send: make(chan outbound, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.clients[clientID]
	h.clients[clientID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.close()
		h.logger.Info("Live connection replaced", map[string]interface{}{"client_id": clientID})
	} else {
		metrics.LiveConnections.Inc()
		h.logger.Info("Live connection opened", map[string]interface{}{"client_id": clientID})
	}

	go h.writePump(c)
	return func() { h.release(c) }
}

// Disconnect closes the connection of clientID if there is one.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		metrics.LiveConnections.Dec()
		c.close()
		h.logger.Info("Live connection closed", map[string]interface{}{"client_id": clientID})
	}
}

// release removes c if it is still the registered connection for its id.
func (h *Hub) release(c *client) {
	h.mu.Lock()
	current := h.clients[c.id] == c
	if current {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	if current {
		metrics.LiveConnections.Dec()
	}
	c.close()
}

// Push queues msg for clientID without blocking or waiting for the write. It reports
// false when the client is not connected or its queue is full.
func (h *Hub) Push(clientID string, msg []byte) bool {
	_, err := h.enqueue(clientID, outbound{data: msg})
	return err == nil
}

// Send queues msg for clientID and waits until the connection has written it. A nil
// error means the frame reached the socket.
func (h *Hub) Send(ctx context.Context, clientID string, msg []byte) error {
	out := outbound{data: msg, written: make(chan error, 1)}
	c, err := h.enqueue(clientID, out)
	if err != nil {
		return err
	}

	select {
	case err := <-out.written:
		return err
	case <-c.done:
		select {
		case err := <-out.written:
			return err
		default:
			return errConnectionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) enqueue(clientID string, out outbound) (*client, error) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil, errNotConnected
	}

	select {
	case <-c.done:
		return nil, errNotConnected
	default:
	}

	select {
	case c.send <- out:
		return c, nil
	default:
		h.logger.Warn("Live connection queue full, message not pushed", map[string]interface{}{
			"client_id": clientID,
		})
		return nil, errQueueFull
	}
}

func (h *Hub) Connected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Disconnect(id)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.release(c)
	}()

	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			err := c.conn.WriteMessage(websocket.TextMessage, out.data)
			if out.written != nil {
				out.written <- err
			}
			if err != nil {
				h.logger.Warn("Live write failed", map[string]interface{}{
					"client_id": c.id,
					"error":     err.Error(),
				})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
