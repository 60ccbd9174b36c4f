package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// ErrSendBufferFull is returned when the outbound queue cannot take another frame.
var ErrSendBufferFull = errors.New("realtime: send buffer full")

// ConnectionHandlers are the socket event callbacks. OnClosed fires at most once,
// when the read loop ends for any reason.
type ConnectionHandlers struct {
	OnFrame  func(data []byte)
	OnClosed func(err error)
}

// ConnectionOptions tunes write deadlines and keepalive.
// A zero ReadTimeout disables the read deadline.
type ConnectionOptions struct {
	WriteWait   time.Duration
	PingPeriod  time.Duration
	ReadTimeout time.Duration
}

// Connection wraps a client socket and coordinates outbound writes via a buffered
// channel drained by a single writer goroutine. Handlers can be detached before
// closing so that a socket being torn down never reaches its owner again.
type Connection struct {
	ws   Conn
	send chan []byte
	opts ConnectionOptions

	mu       sync.Mutex
	handlers *ConnectionHandlers

	once  sync.Once
	close chan struct{}
	done  chan struct{}
}

// NewConnection constructs a Connection over ws.
func NewConnection(ws Conn, h ConnectionHandlers, opts ConnectionOptions) *Connection {
	if opts.WriteWait <= 0 {
		opts.WriteWait = writeWait
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = pingPeriod
	}
	return &Connection{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		opts:     opts,
		handlers: &h,
		close:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the read and write loops. It must be called exactly once.
func (c *Connection) Start() {
	if c.opts.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		})
	}
	go c.readLoop()
	go c.writeLoop()
}

// Send enqueues payload for delivery.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrNotConnected
	default:
	}
	select {
	case <-c.close:
		return ErrNotConnected
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Detach drops the handlers; events that arrive afterwards are discarded.
func (c *Connection) Detach() {
	c.mu.Lock()
	c.handlers = nil
	c.mu.Unlock()
}

// Attached reports whether handlers are still installed.
func (c *Connection) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers != nil
}

// Close sends a close frame with code and reason, then closes the socket.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.opts.WriteWait))
		_ = c.ws.Close()
	})
}

// Done is closed once the read loop has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) current() *ConnectionHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *Connection) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.once.Do(func() {
				close(c.close)
				_ = c.ws.Close()
			})
			if h := c.current(); h != nil && h.OnClosed != nil {
				h.OnClosed(err)
			}
			return
		}
		if h := c.current(); h != nil && h.OnFrame != nil {
			h.OnFrame(data)
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
