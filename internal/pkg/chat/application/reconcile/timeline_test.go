package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tmp-%d", n)
	}
}

func newTestTimeline(opts ...Option) *Timeline {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithTempIDs(sequentialIDs()), WithClock(func() time.Time { return base })}, opts...)
	return NewTimeline(10, opts...)
}

func serverMsg(id int64, content string) chat.Message {
	return chat.Message{ID: id, ConversationID: 10, Content: content, SenderName: "bob", State: chat.DeliveryConfirmed}
}

func TestTimeline_IdempotentMerge(t *testing.T) {
	tl := newTestTimeline()

	assert.True(t, tl.OnServerMessage(serverMsg(1, "a")))
	assert.True(t, tl.OnServerMessage(serverMsg(2, "b")))
	assert.False(t, tl.OnServerMessage(serverMsg(1, "a")))
	assert.False(t, tl.OnServerMessage(serverMsg(2, "b")))
	assert.False(t, tl.OnServerMessage(serverMsg(1, "a")))

	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, int64(2), msgs[1].ID)
}

func TestTimeline_OptimisticResolution(t *testing.T) {
	tl := newTestTimeline()

	pending := tl.OnLocalSend("hello", "me", nil)
	assert.Equal(t, chat.DeliveryPending, pending.State)
	assert.Equal(t, "tmp-1", pending.TempID)
	require.Len(t, tl.Messages(), 1)
	assert.Equal(t, 1, tl.Pending())

	tl.OnServerMessage(serverMsg(42, "hello"))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ID)
	assert.Equal(t, chat.DeliveryConfirmed, msgs[0].State)
	assert.Equal(t, 0, tl.Pending())
}

func TestTimeline_FailurePreservesVisibility(t *testing.T) {
	tl := newTestTimeline()

	pending := tl.OnLocalSend("hi", "me", nil)
	require.True(t, tl.OnSendFailure(pending.TempID))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.DeliveryFailed, msgs[0].State)
	assert.Equal(t, pending.TempID, msgs[0].TempID)

	// a later echo with the same text must not remove the failed entry
	tl.OnServerMessage(serverMsg(7, "hi"))
	msgs = tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.DeliveryFailed, msgs[0].State)
	assert.Equal(t, int64(7), msgs[1].ID)

	assert.False(t, tl.OnSendFailure(pending.TempID), "already failed")
	assert.False(t, tl.OnSendFailure("tmp-unknown"))
}

func TestTimeline_RedeliveryKeepsPendingWithSameText(t *testing.T) {
	tl := newTestTimeline()
	require.True(t, tl.OnServerMessage(serverMsg(42, "ok")))

	pending := tl.OnLocalSend("ok", "me", nil)
	assert.False(t, tl.OnServerMessage(serverMsg(42, "ok")), "a replayed id changes nothing")
	assert.Equal(t, 1, tl.Pending())

	require.True(t, tl.OnSendFailure(pending.TempID))
	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(42), msgs[0].ID)
	assert.Equal(t, chat.DeliveryFailed, msgs[1].State)

	again := tl.OnLocalSend("ok", "me", nil)
	tl.OnServerMessage(serverMsg(42, "ok"))
	require.True(t, tl.Confirm(again.TempID, serverMsg(43, "ok")))
	_, ok := tl.Find(43)
	assert.True(t, ok)
}

func TestTimeline_DuplicateContentResolvesOldestFirst(t *testing.T) {
	tl := newTestTimeline()

	first := tl.OnLocalSend("same", "me", nil)
	second := tl.OnLocalSend("same", "me", nil)

	tl.OnServerMessage(serverMsg(5, "same"))

	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, second.TempID, msgs[0].TempID, "the newer pending entry remains")
	assert.Equal(t, int64(5), msgs[1].ID)
	assert.NotEqual(t, first.TempID, msgs[0].TempID)
}

func TestTimeline_OtherConversationIgnored(t *testing.T) {
	tl := newTestTimeline()
	tl.OnLocalSend("hello", "me", nil)

	other := serverMsg(3, "hello")
	other.ConversationID = 11
	assert.False(t, tl.OnServerMessage(other))
	assert.Equal(t, 1, tl.Pending())
}

func TestTimeline_ConfirmReplacesInPlace(t *testing.T) {
	tl := newTestTimeline()
	tl.OnServerMessage(serverMsg(1, "first"))
	pending := tl.OnLocalSend("Hi", "me", &chat.ReplySnapshot{ID: 1, Content: "first", Sender: "bob"})
	tl.OnServerMessage(serverMsg(2, "later"))

	confirmed := serverMsg(3, "Hi")
	confirmed.SenderName = "me"
	require.True(t, tl.Confirm(pending.TempID, confirmed))

	msgs := tl.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{1, 3, 2}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, chat.DeliveryConfirmed, msgs[1].State)
	require.NotNil(t, msgs[1].Replied, "snapshot carried over from the pending entry")
	assert.Equal(t, int64(1), msgs[1].Replied.ID)
	assert.Equal(t, 0, tl.Pending())
}

func TestTimeline_ConfirmAfterSocketEchoDropsPending(t *testing.T) {
	tl := newTestTimeline()
	pending := tl.OnLocalSend("Hi", "me", nil)
	tl.OnSendFailure(pending.TempID) // not pending anymore
	assert.False(t, tl.Confirm(pending.TempID, serverMsg(3, "Hi")))

	tl2 := newTestTimeline()
	p1 := tl2.OnLocalSend("one", "me", nil)
	p2 := tl2.OnLocalSend("two", "me", nil)
	tl2.OnServerMessage(serverMsg(8, "other text"))
	// socket echo for "two" arrives with a different id path
	tl2.OnServerMessage(serverMsg(9, "two"))
	assert.False(t, tl2.Confirm(p2.TempID, serverMsg(9, "two")), "already reconciled")
	require.True(t, tl2.Confirm(p1.TempID, serverMsg(8, "one")))

	msgs := tl2.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []int64{8, 9}, []int64{msgs[0].ID, msgs[1].ID})
}

func TestTimeline_ReplyResolution(t *testing.T) {
	tl := newTestTimeline()

	seven := int64(7)
	reply := serverMsg(20, "answer")
	reply.ReplyToID = &seven
	tl.OnServerMessage(reply)

	view := tl.View()
	require.Len(t, view, 1)
	assert.Equal(t, ReplyUnresolved, view[0].ReplyState)
	assert.Nil(t, view[0].Reply)
	assert.Equal(t, ReplyPlaceholder, view[0].ReplyPreview())

	// target arrives later; resolution is recomputed
	tl.OnServerMessage(serverMsg(7, "question"))
	view = tl.View()
	require.Len(t, view, 2)
	assert.Equal(t, ReplyResolved, view[0].ReplyState)
	assert.Equal(t, "bob: question", view[0].ReplyPreview())
	assert.Equal(t, ReplyNone, view[1].ReplyState)
	assert.Equal(t, "", view[1].ReplyPreview())
}

func TestTimeline_LocalReplyShowsSnapshotImmediately(t *testing.T) {
	tl := newTestTimeline()

	msg := tl.OnLocalSend("Hi", "me", &chat.ReplySnapshot{ID: 5, Content: "Earlier", Sender: "bob"})
	require.NotNil(t, msg.Replied)
	assert.Equal(t, chat.ReplySnapshot{ID: 5, Content: "Earlier", Sender: "bob"}, *msg.Replied)

	view := tl.View()
	require.Len(t, view, 1)
	assert.Equal(t, ReplyResolved, view[0].ReplyState)
	assert.Equal(t, "bob: Earlier", view[0].ReplyPreview())
}

func TestTimeline_LocalReplyByIDOnly(t *testing.T) {
	tl := newTestTimeline()

	msg := tl.OnLocalSend("Hi", "me", &chat.ReplySnapshot{ID: 5})
	require.NotNil(t, msg.ReplyToID)
	assert.Nil(t, msg.Replied)
	assert.Equal(t, ReplyPlaceholder, tl.View()[0].ReplyPreview())

	tl.OnServerMessage(serverMsg(5, "Earlier"))
	assert.Equal(t, ReplyResolved, tl.View()[0].ReplyState)
}

func TestTimeline_PendingWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tl := NewTimeline(10,
		WithTempIDs(sequentialIDs()),
		WithClock(func() time.Time { return now }),
		WithPendingWindow(time.Minute),
	)

	tl.OnLocalSend("late", "me", nil)
	now = now.Add(2 * time.Minute)
	tl.OnServerMessage(serverMsg(1, "late"))

	msgs := tl.Messages()
	require.Len(t, msgs, 2, "expired pending entry is not matched")
	assert.Equal(t, chat.DeliveryPending, msgs[0].State)
}

func TestTracker(t *testing.T) {
	tr := NewTracker(0, nil)
	_, ok := tr.FindMatch("x")
	assert.False(t, ok)

	tr.BeginSend("a", "x")
	tr.BeginSend("b", "y")
	tr.BeginSend("c", "x")

	id, ok := tr.FindMatch("x")
	require.True(t, ok)
	assert.Equal(t, "a", id)

	tr.Resolve("a")
	id, _ = tr.FindMatch("x")
	assert.Equal(t, "c", id)

	tr.Resolve("missing")
	assert.Equal(t, 2, tr.Len())
}
