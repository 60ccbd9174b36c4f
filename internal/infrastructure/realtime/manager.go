package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

// DefaultReconnectDelay is the wait between a dropped socket and the next attempt.
const DefaultReconnectDelay = 5 * time.Second

// State is the lifecycle state of the conversation socket.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Handlers receive manager events. They are invoked without the manager lock
// held and may call back into the manager.
type Handlers struct {
	OnMessage     func(chat.Message)
	OnError       func(error)
	OnStateChange func(State)
}

// Observer receives connection metrics.
type Observer interface {
	StateChanged(state string)
	ReconnectScheduled()
	FrameReceived(kind string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string)  {}
func (nopObserver) ReconnectScheduled()  {}
func (nopObserver) FrameReceived(string) {}

// Config configures a Manager.
type Config struct {
	BaseURL        string
	ReconnectDelay time.Duration
	Connection     ConnectionOptions
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the system clock.
func WithClock(c Clock) ManagerOption { return func(m *Manager) { m.clock = c } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.obs = o
		}
	}
}

// Manager owns the socket of one conversation view: connect, receive, reconnect
// after failures and deterministic teardown. At most one socket is open at a time
// and at most one reconnect is scheduled.
type Manager struct {
	cfg      Config
	dialer   Dialer
	handlers Handlers
	clock    Clock
	log      *zap.Logger
	obs      Observer

	mu             sync.Mutex
	state          State
	conversationID int64
	token          string
	conn           *Connection
	gen            uint64
	reconnect      Timer
	reconnectSeq   uint64
}

// NewManager constructs a disconnected Manager.
func NewManager(cfg Config, dialer Dialer, h Handlers, opts ...ManagerOption) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		handlers: h,
		clock:    SystemClock(),
		log:      zap.NewNop(),
		obs:      nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the socket for conversationID, replacing any open socket and
// cancelling any scheduled reconnect first. A missing token fails immediately
// with chat.ErrAuthRequired. Dial failures move the manager to Failed, are
// reported through OnError, schedule a reconnect and are also returned.
func (m *Manager) Connect(ctx context.Context, conversationID int64, token string) error {
	if token == "" {
		return chat.ErrAuthRequired
	}
	target, err := SocketURL(m.cfg.BaseURL, conversationID, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	StopTimer(&m.reconnect)
	old := m.detachLocked()
	gen := m.gen
	m.conversationID = conversationID
	m.token = token
	changed := m.setStateLocked(Connecting)
	m.mu.Unlock()

	if old != nil {
		old.Close(websocket.CloseNormalClosure, "switching conversation")
	}
	if changed {
		m.notifyState(Connecting)
	}

	m.log.Debug("dialing conversation socket", zap.Int64("conversation_id", conversationID))
	ws, err := m.dialer.Dial(ctx, target)

	m.mu.Lock()
	if gen != m.gen {
		// disconnected or superseded while dialing
		m.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return nil
	}
	if err != nil {
		terr := &TransportError{Err: err}
		m.setStateLocked(Failed)
		if !errors.Is(err, chat.ErrUnauthorized) {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()

		m.log.Warn("conversation socket dial failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		m.notifyState(Failed)
		m.notifyError(terr)
		return terr
	}

	conn := NewConnection(ws, ConnectionHandlers{
		OnFrame:  func(data []byte) { m.handleFrame(gen, data) },
		OnClosed: func(err error) { m.handleClosed(gen, err) },
	}, m.cfg.Connection)
	m.conn = conn
	m.setStateLocked(Connected)
	m.mu.Unlock()

	conn.Start()
	m.log.Info("conversation socket connected", zap.Int64("conversation_id", conversationID))
	m.notifyState(Connected)
	return nil
}

// Disconnect detaches the socket's handlers, closes it with a normal closure and
// cancels any scheduled reconnect. It is safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.detachLocked()
	StopTimer(&m.reconnect)
	changed := m.setStateLocked(Disconnected)
	m.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.CloseNormalClosure, "client disconnect")
	}
	if changed {
		m.notifyState(Disconnected)
	}
}

// Send writes frame when the socket is connected. It reports false instead of
// failing so that the caller can fall back to HTTP delivery.
func (m *Manager) Send(frame chat.OutboundFrame) bool {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if state != Connected || conn == nil {
		return false
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	if err := conn.Send(payload); err != nil {
		m.log.Warn("socket send failed", zap.Error(err))
		return false
	}
	return true
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConversationID returns the conversation of the last Connect call.
func (m *Manager) ConversationID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// ReconnectPending reports whether a reconnect is scheduled.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnect != nil
}

// detachLocked invalidates callbacks of the current socket and hands it back
// for closing outside the lock.
func (m *Manager) detachLocked() *Connection {
	m.gen++
	conn := m.conn
	m.conn = nil
	if conn != nil {
		conn.Detach()
	}
	return conn
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	m.obs.StateChanged(s.String())
	return true
}

func (m *Manager) scheduleReconnectLocked() {
	StopTimer(&m.reconnect)
	m.reconnectSeq++
	seq, gen := m.reconnectSeq, m.gen
	conversationID, token := m.conversationID, m.token

	m.reconnect = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		if seq != m.reconnectSeq || gen != m.gen || m.reconnect == nil {
			m.mu.Unlock()
			return
		}
		m.reconnect = nil
		m.mu.Unlock()

		m.log.Info("reconnecting conversation socket", zap.Int64("conversation_id", conversationID))
		_ = m.Connect(context.Background(), conversationID, token)
	})
	m.obs.ReconnectScheduled()
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) handleFrame(gen uint64, data []byte) {
	if !m.isCurrent(gen) {
		return
	}

	var frame chat.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.obs.FrameReceived("malformed")
		m.log.Warn("malformed socket frame", zap.Error(err))
		m.notifyError(&ParseError{Raw: data, Err: err})
		return
	}

	switch frame.Type {
	case chat.FrameTypeMessage:
		var msg chat.Message
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			m.obs.FrameReceived("malformed")
			m.notifyError(&ParseError{Raw: data, Err: err})
			return
		}
		m.obs.FrameReceived(chat.FrameTypeMessage)
		if msg.ConversationID == 0 {
			msg.ConversationID = m.ConversationID()
		}
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(msg)
		}
	case chat.FrameTypeError:
		m.obs.FrameReceived(chat.FrameTypeError)
		var text string
		if err := json.Unmarshal(frame.Message, &text); err != nil {
			text = string(frame.Message)
		}
		m.notifyError(&ServerError{Message: text})
	default:
		m.obs.FrameReceived("unknown")
		m.log.Debug("ignoring socket frame", zap.String("type", frame.Type))
	}
}

func (m *Manager) handleClosed(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		m.setStateLocked(Disconnected)
		abnormal := closeErr.Code != websocket.CloseNormalClosure
		if abnormal {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()

		m.log.Info("conversation socket closed", zap.Int("code", closeErr.Code))
		m.notifyState(Disconnected)
		if abnormal {
			m.notifyError(&TransportError{Code: closeErr.Code, Err: err})
		}
		return
	}

	m.setStateLocked(Failed)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.log.Warn("conversation socket failed", zap.Error(err))
	m.notifyState(Failed)
	m.notifyError(&TransportError{Err: err})
}

func (m *Manager) notifyState(s State) {
	if m.handlers.OnStateChange != nil {
		m.handlers.OnStateChange(s)
	}
}

func (m *Manager) notifyError(err error) {
	if m.handlers.OnError != nil {
		m.handlers.OnError(err)
	}
}
