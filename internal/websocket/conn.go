package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Frames are base64 JPEGs.
	maxMessageSize = 2 * 1024 * 1024

	sendBufferSize    = 256
	messageBufferSize = 64
)

var (
	// ErrConnectionClosed is returned by Send after the connection terminated,
	// and wraps the cause reported by Err for remote closure.
	ErrConnectionClosed = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the web client has a fixed host
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn is one ordered, bidirectional text channel. The same pumps serve the
// client and server side. Frames travel on their own single-slot lane so a
// slow uplink drops them instead of queueing them in front of control messages.
type Conn struct {
	conn *websocket.Conn

	// Buffered channel of outbound control messages.
	send chan []byte

	// frame holds at most one pending frame. frameBusy stays set until that
	// frame is written or discarded.
	frame     chan []byte
	frameBusy atomic.Bool

	// Inbound text messages, in arrival order.
	messages chan []byte

	closed    chan struct{}
	closeOnce sync.Once
	local     bool
	errMu     sync.Mutex
	err       error

	logger *zap.Logger
}

// newConn wraps an established websocket and starts its pumps
func newConn(ws *websocket.Conn, logger *zap.Logger) *Conn {
	c := &Conn{
		conn:     ws,
		send:     make(chan []byte, sendBufferSize),
		frame:    make(chan []byte, 1),
		messages: make(chan []byte, messageBufferSize),
		closed:   make(chan struct{}),
		logger:   logger,
	}

	go c.writePump()
	go c.readPump()

	return c
}

// Upgrade upgrades an HTTP request to a server-side Conn
func Upgrade(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return nil, err
	}
	return newConn(ws, logger), nil
}

// Send queues a control message. Control messages are written in call order
// and ahead of any pending frame.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendFrame hands a frame to the writer without waiting. A frame offered while
// the previous one is pending or being written is refused with
// repositories.ErrFrameInFlight.
func (c *Conn) SendFrame(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	if !c.frameBusy.CompareAndSwap(false, true) {
		return repositories.ErrFrameInFlight
	}
	// The slot is empty whenever frameBusy was clear.
	c.frame <- payload
	return nil
}

// FrameInFlight reports whether a frame is pending or being written
func (c *Conn) FrameInFlight() bool {
	return c.frameBusy.Load()
}

// Messages delivers incoming text messages
func (c *Conn) Messages() <-chan []byte {
	return c.messages
}

// Closed is closed once the connection terminates
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Err returns why the connection closed, nil while open or after a local Close
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close sends a close frame and terminates the connection
func (c *Conn) Close() error {
	c.shutdown(nil, true)
	return nil
}

func (c *Conn) shutdown(cause error, local bool) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.local = local
		if cause != nil {
			c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
		}
		c.errMu.Unlock()
		close(c.closed)
	})
}

func (c *Conn) isLocal() bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.local
}

// readPump pumps messages from the websocket connection to Messages.
func (c *Conn) readPump() {
	var cause error
	defer func() {
		c.shutdown(cause, false)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isLocal() {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			cause = err
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received non-text message", zap.Int("type", messageType))
			continue
		}

		select {
		case c.messages <- message:
		case <-c.closed:
			return
		}
	}
}

// writePump pumps queued messages to the websocket connection. Control
// messages always go before a pending frame.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeControl(message) {
				return
			}
			continue
		default:
		}

		select {
		case message := <-c.send:
			if !c.writeControl(message) {
				return
			}

		case frame := <-c.frame:
			err := c.write(websocket.TextMessage, frame)
			c.frameBusy.Store(false)
			if err != nil {
				c.logger.Error("Failed to write frame", zap.Error(err))
				c.shutdown(err, false)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown(err, false)
				return
			}

		case <-c.closed:
			if c.isLocal() {
				c.drain()
				c.write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}

// writeControl discards a frame still waiting in the slot, so no frame reaches
// the peer after a control message queued later than it.
func (c *Conn) writeControl(message []byte) bool {
	c.discardFrame()
	if err := c.write(websocket.TextMessage, message); err != nil {
		c.logger.Error("Failed to write message", zap.Error(err))
		c.shutdown(err, false)
		return false
	}
	return true
}

func (c *Conn) discardFrame() {
	select {
	case <-c.frame:
		c.frameBusy.Store(false)
	default:
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// drain flushes control messages queued before a local Close, so a final
// control message still reaches the peer. Pending frames are dropped.
func (c *Conn) drain() {
	c.discardFrame()
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
