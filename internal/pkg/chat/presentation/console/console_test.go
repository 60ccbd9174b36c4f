package console_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
	"go-chatty-client/internal/pkg/chat/presentation/console"
)

func TestParseInput(t *testing.T) {
	id := int64(42)
	tests := []struct {
		name    string
		line    string
		want    console.Command
		wantErr error
	}{
		{name: "blank", line: "   ", want: console.Command{Kind: console.CommandNone}},
		{name: "plain text", line: "  hello  ", want: console.Command{Kind: console.CommandSend, Content: "hello"}},
		{name: "reply", line: "/reply 42 sounds good", want: console.Command{Kind: console.CommandReply, Content: "sounds good", ReplyToID: &id}},
		{name: "reply with hash", line: "/reply #42 ok", want: console.Command{Kind: console.CommandReply, Content: "ok", ReplyToID: &id}},
		{name: "reply without text", line: "/reply 42", wantErr: chat.ErrEmptyMessage},
		{name: "quit", line: "/quit", want: console.Command{Kind: console.CommandQuit}},
		{name: "dismiss", line: "/dismiss", want: console.Command{Kind: console.CommandDismiss}},
		{name: "too long", line: strings.Repeat("x", chat.MaxContentLength+1), wantErr: console.ErrTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := console.ParseInput(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInput_Invalid(t *testing.T) {
	_, err := console.ParseInput("/reply abc hi")
	assert.Error(t, err)

	_, err = console.ParseInput("/frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}

func TestParseInput_MaxLengthAccepted(t *testing.T) {
	cmd, err := console.ParseInput(strings.Repeat("é", chat.MaxContentLength))
	require.NoError(t, err)
	assert.Equal(t, console.CommandSend, cmd.Kind)
}

func TestFormatEntry(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	confirmed := reconcile.Entry{Message: chat.Message{ID: 7, Content: "hi", SenderName: "bob", CreatedAt: at}}
	assert.Equal(t, "[09:30] #7 bob: hi", console.FormatEntry(confirmed))

	pending := reconcile.Entry{Message: chat.Message{TempID: "t1", Content: "on my way", SenderName: "me", State: chat.DeliveryPending}}
	assert.Equal(t, "[--:--] me: on my way (sending)", console.FormatEntry(pending))

	failed := reconcile.Entry{Message: chat.Message{TempID: "t2", Content: "lost", SenderName: "me", State: chat.DeliveryFailed}}
	assert.True(t, strings.HasSuffix(console.FormatEntry(failed), "(failed)"))

	reply := reconcile.Entry{
		Message:    chat.Message{ID: 8, Content: "sure", SenderName: "me", CreatedAt: at},
		Reply:      &chat.ReplySnapshot{ID: 7, Content: "lunch?", Sender: "bob"},
		ReplyState: reconcile.ReplyResolved,
	}
	assert.Equal(t, "   > bob: lunch?\n[09:30] #8 me: sure", console.FormatEntry(reply))

	unresolved := reconcile.Entry{Message: chat.Message{ID: 9, Content: "?", SenderName: "me", CreatedAt: at}, ReplyState: reconcile.ReplyUnresolved}
	assert.Contains(t, console.FormatEntry(unresolved), reconcile.ReplyPlaceholder)
}

func TestRenderer_OnTimelinePrintsOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	r := console.NewRenderer(&buf, "me")

	first := reconcile.Entry{Message: chat.Message{ID: 1, Content: "hello", SenderName: "bob"}}
	pending := reconcile.Entry{Message: chat.Message{TempID: "t1", Content: "hey", SenderName: "me", State: chat.DeliveryPending}}

	r.OnTimeline(10, []reconcile.Entry{first})
	r.OnTimeline(10, []reconcile.Entry{first, pending})
	confirmed := reconcile.Entry{Message: chat.Message{ID: 2, Content: "hey", SenderName: "me"}}
	r.OnTimeline(10, []reconcile.Entry{first, confirmed})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "bob: hello")
	assert.Contains(t, lines[1], "me: hey (sending)")
	assert.Contains(t, lines[2], "#2 me: hey")
}

func TestRenderer_Tables(t *testing.T) {
	var buf bytes.Buffer
	r := console.NewRenderer(&buf, "me")

	r.Conversations([]chat.Conversation{
		{ID: 3, Members: []chat.User{{ID: 1, Username: "me"}, {ID: 2, Username: "bob"}}},
		{ID: 4, IsGroup: true, Title: "team"},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "team")

	buf.Reset()
	r.Users(nil)
	assert.Equal(t, "No users.\n", buf.String())
}

func TestRenderer_BannerHidesEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := console.NewRenderer(&buf, "me")

	r.OnBanner("")
	assert.Empty(t, buf.String())
	r.OnBanner("Connection lost. Retrying...")
	assert.Equal(t, "!! Connection lost. Retrying...\n", buf.String())
}
