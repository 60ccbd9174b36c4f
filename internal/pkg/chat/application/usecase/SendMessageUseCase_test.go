package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
	"go-chatty-client/internal/pkg/chat/persistence/repository/repositorytest"
)

type fakeSocket struct {
	connected bool
	frames    []chat.OutboundFrame
}

func (s *fakeSocket) Send(f chat.OutboundFrame) bool {
	if !s.connected {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

type recorded struct {
	channel string
	failed  bool
}

type fakeRecorder struct{ sends []recorded }

func (r *fakeRecorder) SendCompleted(channel string, err error) {
	r.sends = append(r.sends, recorded{channel: channel, failed: err != nil})
}

func newSendFixture(connected bool) (*SendMessageUseCase, *repositorytest.FakeRepository, *fakeSocket, *fakeRecorder) {
	repo := repositorytest.NewFakeRepository()
	sock := &fakeSocket{connected: connected}
	rec := &fakeRecorder{}
	seq := 0
	tl := reconcile.NewTimeline(10, reconcile.WithTempIDs(func() string {
		seq++
		return fmt.Sprintf("tmp-%d", seq)
	}))
	uc := NewSendMessageUseCase(repo)
	uc.Timeline = tl
	uc.Socket = sock
	uc.SenderName = "me"
	uc.Recorder = rec
	uc.Tokens = auth.NewStaticToken("tok")
	return uc, repo, sock, rec
}

func TestSendMessageUseCase_EmptyContent(t *testing.T) {
	uc, repo, sock, _ := newSendFixture(true)

	_, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 10, Content: "   \n"})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.Empty(t, uc.Timeline.Messages())
	assert.Empty(t, sock.frames)
	assert.Empty(t, repo.SentMessages())
}

func TestSendMessageUseCase_OverSocket(t *testing.T) {
	uc, repo, sock, rec := newSendFixture(true)
	uc.Timeline.OnServerMessage(chat.Message{ID: 5, ConversationID: 10, Content: "Earlier", SenderName: "bob"})
	five := int64(5)

	msg, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 10, Content: " Hi ", ReplyToID: &five})
	require.NoError(t, err)
	assert.Equal(t, chat.DeliveryPending, msg.State)
	assert.Equal(t, "Hi", msg.Content)
	require.NotNil(t, msg.Replied)
	assert.Equal(t, "Earlier", msg.Replied.Content)

	require.Len(t, sock.frames, 1)
	b, _ := json.Marshal(sock.frames[0])
	assert.Equal(t, `{"action":"send_message","content":"Hi","reply_to":5}`, string(b))
	assert.Empty(t, repo.SentMessages())
	assert.Equal(t, []recorded{{channel: ChannelSocket}}, rec.sends)

	// server echo resolves the optimistic entry
	uc.Timeline.OnServerMessage(chat.Message{ID: 6, ConversationID: 10, Content: "Hi", SenderName: "me", ReplyToID: &five})
	msgs := uc.Timeline.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(6), msgs[1].ID)
	assert.Zero(t, uc.Timeline.Pending())
}

func TestSendMessageUseCase_HTTPFallback(t *testing.T) {
	uc, repo, _, rec := newSendFixture(false)

	msg, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 10, Content: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, chat.DeliveryConfirmed, msg.State)

	sent := repo.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, repositorytest.SentMessage{ConversationID: 10, Content: "Hi"}, sent[0])

	msgs := uc.Timeline.Messages()
	require.Len(t, msgs, 1, "pending entry replaced in place")
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, chat.DeliveryConfirmed, msgs[0].State)
	assert.Equal(t, []recorded{{channel: ChannelHTTP}}, rec.sends)
}

func TestSendMessageUseCase_FailureKeepsMessageVisible(t *testing.T) {
	uc, repo, _, rec := newSendFixture(false)
	repo.SetSendError(errors.New("500"))

	msg, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 10, Content: "Hi"})
	require.ErrorIs(t, err, ErrRemote)
	assert.NotEmpty(t, msg.TempID)

	msgs := uc.Timeline.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.DeliveryFailed, msgs[0].State)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, []recorded{{channel: ChannelHTTP, failed: true}}, rec.sends)

	// a later message with the same content does not remove the failed one
	uc.Timeline.OnServerMessage(chat.Message{ID: 9, ConversationID: 10, Content: "Hi"})
	assert.Len(t, uc.Timeline.Messages(), 2)
}

func TestSendMessageUseCase_UnauthorizedClearsToken(t *testing.T) {
	uc, repo, _, _ := newSendFixture(false)
	repo.SetSendError(chat.ErrUnauthorized)

	_, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 10, Content: "Hi"})
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.Empty(t, uc.Tokens.Token())
}

func TestSendMessageUseCase_WithoutTimeline(t *testing.T) {
	repo := repositorytest.NewFakeRepository()
	uc := NewSendMessageUseCase(repo)

	msg, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 3, Content: "scheduled"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Len(t, repo.SentMessages(), 1)
}

func TestSendMessageUseCase_RejectsForeignConversation(t *testing.T) {
	uc, _, _, _ := newSendFixture(true)
	_, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: 11, Content: "Hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
