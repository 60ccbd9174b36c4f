package realtimetest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-chatty-client/internal/infrastructure/realtime"
)

// ErrClosed is returned by reads on a locally closed FakeConn.
var ErrClosed = errors.New("realtimetest: use of closed connection")

type readResult struct {
	data []byte
	err  error
}

// FakeConn is an in-memory realtime.Conn. Tests push inbound frames and
// inspect what the client wrote.
type FakeConn struct {
	inbound chan readResult
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	written   [][]byte
	closeCode int

	// Writes receives a copy of every text frame written by the client.
	Writes chan []byte
}

// NewFakeConn returns an open FakeConn.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan readResult, 16),
		closed:  make(chan struct{}),
		Writes:  make(chan []byte, 16),
	}
}

var _ realtime.Conn = (*FakeConn)(nil)

// Push delivers a text frame to the client's read loop.
func (c *FakeConn) Push(data []byte) { c.inbound <- readResult{data: data} }

// Fail makes the pending read return err.
func (c *FakeConn) Fail(err error) { c.inbound <- readResult{err: err} }

// CloseFromServer simulates a close frame with the given code.
func (c *FakeConn) CloseFromServer(code int) {
	c.inbound <- readResult{err: &websocket.CloseError{Code: code}}
}

func (c *FakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.inbound:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.data, nil
	case <-c.closed:
		return 0, nil, ErrClosed
	}
}

func (c *FakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	cp := append([]byte(nil), data...)
	c.mu.Lock()
	c.written = append(c.written, cp)
	c.mu.Unlock()
	select {
	case c.Writes <- cp:
	default:
	}
	return nil
}

func (c *FakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.mu.Lock()
		c.closeCode = int(binary.BigEndian.Uint16(data[:2]))
		c.mu.Unlock()
	}
	return nil
}

func (c *FakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *FakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *FakeConn) SetPongHandler(func(string) error) {}

func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// IsClosed reports whether the client closed the connection.
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// CloseCode returns the code of the close frame sent by the client, if any.
func (c *FakeConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Written returns every text frame written so far.
func (c *FakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// FakeDialer hands out FakeConns and records dialed URLs.
type FakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*FakeConn
	err   error
	gate  chan struct{}
}

var _ realtime.Dialer = (*FakeDialer)(nil)

// NewFakeDialer returns a dialer whose dials succeed.
func NewFakeDialer() *FakeDialer { return &FakeDialer{} }

// SetError makes subsequent dials fail with err; nil restores success.
func (d *FakeDialer) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Hold makes subsequent dials block until the returned release func is called.
func (d *FakeDialer) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.gate = nil
			d.mu.Unlock()
			close(gate)
		})
	}
}

func (d *FakeDialer) Dial(ctx context.Context, urlStr string) (realtime.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, urlStr)
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := NewFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

// Dials returns the URLs dialed so far.
func (d *FakeDialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Conns returns every connection handed out.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeConn(nil), d.conns...)
}

// Last returns the most recent connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
