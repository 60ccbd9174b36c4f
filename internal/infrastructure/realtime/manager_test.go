package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-chatty-client/internal/infrastructure/realtime"
	"go-chatty-client/internal/infrastructure/realtime/realtimetest"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu       sync.Mutex
	messages []chat.Message
	errs     []error
	states   []realtime.State
}

func (r *recorder) handlers() realtime.Handlers {
	return realtime.Handlers{
		OnMessage: func(m chat.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnStateChange: func(s realtime.State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newManager(t *testing.T) (*realtime.Manager, *realtimetest.FakeDialer, *realtimetest.FakeClock, *recorder) {
	t.Helper()
	dialer := realtimetest.NewFakeDialer()
	clock := realtimetest.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &recorder{}
	m := realtime.NewManager(realtime.Config{BaseURL: "https://erp.example.com"}, dialer, rec.handlers(), realtime.WithClock(clock))
	t.Cleanup(m.Disconnect)
	return m, dialer, clock, rec
}

func messageFrame(t *testing.T, id int64, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"type":    "message",
		"message": map[string]any{"id": id, "content": content, "sender": map[string]any{"username": "bob"}},
	})
	require.NoError(t, err)
	return b
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "https maps to wss", base: "https://erp.example.com", want: "wss://erp.example.com/ws/chat/10/?token=abc"},
		{name: "http maps to ws", base: "http://localhost:8000/api", want: "ws://localhost:8000/ws/chat/10/?token=abc"},
		{name: "ws kept", base: "ws://10.0.0.1:9000", want: "ws://10.0.0.1:9000/ws/chat/10/?token=abc"},
		{name: "missing host", base: "/relative", wantErr: true},
		{name: "bad scheme", base: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := realtime.SocketURL(tt.base, 10, "abc")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_ConnectRequiresToken(t *testing.T) {
	m, dialer, clock, _ := newManager(t)

	err := m.Connect(context.Background(), 10, "")
	assert.ErrorIs(t, err, chat.ErrAuthRequired)
	assert.Empty(t, dialer.Dials())
	assert.Equal(t, realtime.Disconnected, m.State())
	assert.Equal(t, 0, clock.Pending())
}

func TestManager_ConnectAndReceive(t *testing.T) {
	m, dialer, _, rec := newManager(t)

	require.NoError(t, m.Connect(context.Background(), 10, "tok"))
	assert.Equal(t, realtime.Connected, m.State())
	assert.Equal(t, []string{"wss://erp.example.com/ws/chat/10/?token=tok"}, dialer.Dials())

	dialer.Last().Push(messageFrame(t, 42, "hello"))
	require.Eventually(t, func() bool { return rec.messageCount() == 1 }, waitFor, 5*time.Millisecond)

	rec.mu.Lock()
	got := rec.messages[0]
	rec.mu.Unlock()
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "bob", got.SenderName)
	assert.Equal(t, int64(10), got.ConversationID, "conversation filled from the socket")
}

func TestManager_ErrorAndMalformedFramesAreNonFatal(t *testing.T) {
	m, dialer, _, rec := newManager(t)
	require.NoError(t, m.Connect(context.Background(), 10, "tok"))
	conn := dialer.Last()

	conn.Push([]byte(`{"type":"error","message":"You are not a member"}`))
	conn.Push([]byte(`{not json`))
	conn.Push(messageFrame(t, 1, "still alive"))

	require.Eventually(t, func() bool { return rec.messageCount() == 1 }, waitFor, 5*time.Millisecond)
	errs := rec.errors()
	require.Len(t, errs, 2)

	var serverErr *realtime.ServerError
	require.ErrorAs(t, errs[0], &serverErr)
	assert.Equal(t, "You are not a member", serverErr.Message)

	var parseErr *realtime.ParseError
	require.ErrorAs(t, errs[1], &parseErr)

	assert.Equal(t, realtime.Connected, m.State())
	assert.False(t, conn.IsClosed())
}

func TestManager_SendOnlyWhenConnected(t *testing.T) {
	m, dialer, _, _ := newManager(t)

	assert.False(t, m.Send(chat.NewSendFrame("early", nil)))

	require.NoError(t, m.Connect(context.Background(), 10, "tok"))
	five := int64(5)
	require.True(t, m.Send(chat.NewSendFrame("Hi", &five)))

	select {
	case b := <-dialer.Last().Writes:
		assert.Equal(t, `{"action":"send_message","content":"Hi","reply_to":5}`, string(b))
	case <-time.After(waitFor):
		t.Fatal("frame not written")
	}

	m.Disconnect()
	assert.False(t, m.Send(chat.NewSendFrame("late", nil)))
}

func TestManager_ReconnectSingleFlight(t *testing.T) {
	m, dialer, clock, rec := newManager(t)
	dialer.SetError(errors.New("connection refused"))

	err := m.Connect(context.Background(), 10, "tok")
	var terr *realtime.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, realtime.Failed, m.State())
	assert.Equal(t, 1, clock.Pending())

	// a second failure inside the delay window replaces, not adds, the timer
	_ = m.Connect(context.Background(), 10, "tok")
	assert.Equal(t, 1, clock.Pending())
	assert.Len(t, rec.errors(), 2)

	clock.Advance(realtime.DefaultReconnectDelay - time.Millisecond)
	assert.Len(t, dialer.Dials(), 2)

	clock.Advance(time.Millisecond)
	assert.Len(t, dialer.Dials(), 3)
	assert.Equal(t, 1, clock.Pending())

	dialer.SetError(nil)
	clock.Advance(realtime.DefaultReconnectDelay)
	assert.Equal(t, realtime.Connected, m.State())
	assert.Equal(t, 0, clock.Pending())
	assert.False(t, m.ReconnectPending())
}

func TestManager_UnauthorizedDialIsNotRetried(t *testing.T) {
	m, dialer, clock, _ := newManager(t)
	dialer.SetError(chat.ErrUnauthorized)

	err := m.Connect(context.Background(), 10, "tok")
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.Equal(t, realtime.Failed, m.State())
	assert.Equal(t, 0, clock.Pending())
}

func TestManager_CloseHandling(t *testing.T) {
	t.Run("abnormal close reconnects", func(t *testing.T) {
		m, dialer, clock, rec := newManager(t)
		require.NoError(t, m.Connect(context.Background(), 10, "tok"))

		dialer.Last().CloseFromServer(websocket.CloseAbnormalClosure)
		require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, 1, clock.Pending())
		assert.Equal(t, realtime.Disconnected, m.State())

		var terr *realtime.TransportError
		require.ErrorAs(t, rec.errors()[0], &terr)
		assert.Equal(t, websocket.CloseAbnormalClosure, terr.Code)
		assert.Contains(t, terr.Error(), "(1006)")

		clock.Advance(realtime.DefaultReconnectDelay)
		assert.Equal(t, realtime.Connected, m.State())
		assert.Len(t, dialer.Conns(), 2)
	})

	t.Run("normal close does not reconnect", func(t *testing.T) {
		m, dialer, clock, _ := newManager(t)
		require.NoError(t, m.Connect(context.Background(), 10, "tok"))

		dialer.Last().CloseFromServer(websocket.CloseNormalClosure)
		require.Eventually(t, func() bool { return m.State() == realtime.Disconnected }, waitFor, 5*time.Millisecond)
		assert.Equal(t, 0, clock.Pending())
	})

	t.Run("transport error fails and reconnects", func(t *testing.T) {
		m, dialer, clock, rec := newManager(t)
		require.NoError(t, m.Connect(context.Background(), 10, "tok"))

		dialer.Last().Fail(errors.New("connection reset by peer"))
		require.Eventually(t, func() bool { return m.State() == realtime.Failed }, waitFor, 5*time.Millisecond)
		assert.Equal(t, 1, clock.Pending())

		errs := rec.errors()
		require.Len(t, errs, 1)
		var terr *realtime.TransportError
		assert.ErrorAs(t, errs[0], &terr)
	})
}

func TestManager_DisconnectIsExitPathSafe(t *testing.T) {
	t.Run("while connecting", func(t *testing.T) {
		m, dialer, clock, _ := newManager(t)
		release := dialer.Hold()

		done := make(chan error, 1)
		go func() { done <- m.Connect(context.Background(), 10, "tok") }()
		require.Eventually(t, func() bool { return m.State() == realtime.Connecting }, waitFor, 5*time.Millisecond)

		m.Disconnect()
		release()
		require.NoError(t, <-done)

		assert.Equal(t, realtime.Disconnected, m.State())
		assert.Equal(t, 0, clock.Pending())
		require.Len(t, dialer.Conns(), 1)
		assert.True(t, dialer.Last().IsClosed(), "socket that finished dialing after teardown is closed")
		assert.False(t, m.Send(chat.NewSendFrame("x", nil)))
	})

	t.Run("while connected", func(t *testing.T) {
		m, dialer, clock, rec := newManager(t)
		require.NoError(t, m.Connect(context.Background(), 10, "tok"))
		conn := dialer.Last()

		m.Disconnect()
		assert.Equal(t, realtime.Disconnected, m.State())
		assert.True(t, conn.IsClosed())
		assert.Equal(t, websocket.CloseNormalClosure, conn.CloseCode())
		assert.Equal(t, 0, clock.Pending())

		conn.Push(messageFrame(t, 1, "after teardown"))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, rec.messageCount())
		assert.Empty(t, rec.errors(), "teardown does not surface errors")
	})

	t.Run("with a reconnect scheduled", func(t *testing.T) {
		m, dialer, clock, _ := newManager(t)
		dialer.SetError(errors.New("refused"))
		_ = m.Connect(context.Background(), 10, "tok")
		require.Equal(t, 1, clock.Pending())

		m.Disconnect()
		assert.Equal(t, 0, clock.Pending())
		clock.Advance(time.Minute)
		assert.Len(t, dialer.Dials(), 1)
	})

	t.Run("already disconnected", func(t *testing.T) {
		m, _, clock, rec := newManager(t)
		m.Disconnect()
		m.Disconnect()
		assert.Equal(t, realtime.Disconnected, m.State())
		assert.Equal(t, 0, clock.Pending())
		rec.mu.Lock()
		assert.Empty(t, rec.states)
		rec.mu.Unlock()
	})
}

func TestManager_SwitchConversationTearsDownPrevious(t *testing.T) {
	m, dialer, _, rec := newManager(t)

	require.NoError(t, m.Connect(context.Background(), 10, "tok"))
	first := dialer.Last()
	require.NoError(t, m.Connect(context.Background(), 11, "tok"))
	second := dialer.Last()

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.Equal(t, int64(11), m.ConversationID())

	second.Push(messageFrame(t, 2, "from eleven"))
	require.Eventually(t, func() bool { return rec.messageCount() == 1 }, waitFor, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, int64(11), rec.messages[0].ConversationID)
	rec.mu.Unlock()
}
