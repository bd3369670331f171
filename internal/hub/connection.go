package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hsltracker-data/internal/common/logger"
)

const writeTimeout = 10 * time.Second

// ConnState is the per-connection lifecycle state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// connection wraps one websocket client. Writes are serialized through
// sendMu; the alive flag is flipped by the pong handler and consumed by the
// hub's liveness sweep.
type connection struct {
	ws     *websocket.Conn
	logger logger.Logger

	state     atomic.Int32
	alive     atomic.Bool
	sendMu    sync.Mutex
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, log logger.Logger) *connection {
	c := &connection{ws: ws, logger: log}
	c.setState(StateConnecting)
	c.alive.Store(true)
	return c
}

func (c *connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

func (c *connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *connection) sendJSON(v interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *connection) ping() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		_ = c.ws.Close()
	})
}

// readLoop consumes inbound frames until the connection dies. The transport
// pong marks the connection alive for the next sweep.
func (c *connection) readLoop(h *Hub) {
	defer h.evict(c)

	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage implements the minimal client command protocol. Malformed
// payloads are dropped without closing the connection.
func (c *connection) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Dropping malformed client message", "error", err)
		return
	}

	switch msg.Type {
	case "ping":
		if err := c.sendJSON(serverMessage{Type: "pong"}); err != nil {
			c.logger.Debug("Failed to answer ping", "error", err)
		}
	case "subscribe":
		// Reserved for route-specific subscriptions.
	default:
		c.logger.Debug("Unknown client message type", "type", msg.Type)
	}
}
