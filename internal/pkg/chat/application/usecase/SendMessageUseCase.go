package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// Delivery channels reported to SendRecorder.
const (
	ChannelSocket = "socket"
	ChannelHTTP   = "http"
)

// Socket is the realtime send path. Send reports false when the frame could not
// be handed to an open socket.
type Socket interface {
	Send(frame chat.OutboundFrame) bool
}

// SendRecorder observes send outcomes.
type SendRecorder interface {
	SendCompleted(channel string, err error)
}

// SendMessageInput carries the data needed to send a new message
type SendMessageInput struct {
	ConversationID int64
	Content        string
	ReplyToID      *int64
	// ReplyTo, when set, is shown as reply context if the replied message is
	// not in the timeline. Its ID is used when ReplyToID is nil.
	ReplyTo *chat.ReplySnapshot
}

// SendMessageUseCase delivers a message: optimistically into the timeline, then
// over the socket, falling back to an HTTP POST when the socket is unavailable.
// Timeline and Socket are optional; without them only the HTTP path runs.
type SendMessageUseCase struct {
	Repo       repository.ChatRepository
	Timeline   *reconcile.Timeline
	Socket     Socket
	Tokens     auth.TokenSource
	SenderName string
	Recorder   SendRecorder
	Log        *zap.Logger
	// OnChange, when set, runs after every timeline mutation made by Execute.
	OnChange func()
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo, Log: zap.NewNop()}
}

// Execute sends in.Content. Socket delivery returns the pending message, which the
// server echo later confirms; HTTP delivery returns the confirmed message. On
// failure the pending message is marked failed and the error returned.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (chat.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return chat.Message{}, chat.ErrEmptyMessage
	}
	if in.ConversationID <= 0 {
		return chat.Message{}, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	if uc.Timeline != nil && uc.Timeline.ConversationID() != in.ConversationID {
		return chat.Message{}, fmt.Errorf("%w: timeline belongs to conversation %d", ErrInvalidInput, uc.Timeline.ConversationID())
	}
	if in.ReplyToID == nil && in.ReplyTo != nil && in.ReplyTo.ID != 0 {
		id := in.ReplyTo.ID
		in.ReplyToID = &id
	}
	log := uc.Log
	if log == nil {
		log = zap.NewNop()
	}

	var pending chat.Message
	if uc.Timeline != nil {
		pending = uc.Timeline.OnLocalSend(content, uc.SenderName, uc.replySnapshot(in))
		uc.changed()
	}

	if uc.Socket != nil && uc.Socket.Send(chat.NewSendFrame(content, in.ReplyToID)) {
		uc.record(ChannelSocket, nil)
		log.Debug("message sent over socket", zap.String("temp_id", pending.TempID))
		return pending, nil
	}

	msg, err := uc.Repo.SendMessage(ctx, in.ConversationID, content, in.ReplyToID)
	uc.record(ChannelHTTP, err)
	if err != nil {
		if uc.Timeline != nil {
			uc.Timeline.OnSendFailure(pending.TempID)
			uc.changed()
		}
		log.Warn("message delivery failed", zap.Int64("conversation_id", in.ConversationID), zap.String("temp_id", pending.TempID), zap.Error(err))
		if isAuthError(err) {
			if uc.Tokens != nil {
				uc.Tokens.Clear()
			}
			return pending, err
		}
		return pending, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	if uc.Timeline != nil {
		uc.Timeline.Confirm(pending.TempID, msg)
		uc.changed()
	}
	return msg, nil
}

// replySnapshot prefers the loaded message, then the caller's snapshot, then
// an id-only reference.
func (uc *SendMessageUseCase) replySnapshot(in SendMessageInput) *chat.ReplySnapshot {
	if in.ReplyToID == nil {
		return nil
	}
	if target, ok := uc.Timeline.Find(*in.ReplyToID); ok {
		snap := target.Snapshot()
		return &snap
	}
	if in.ReplyTo != nil && in.ReplyTo.ID == *in.ReplyToID {
		snap := *in.ReplyTo
		return &snap
	}
	return &chat.ReplySnapshot{ID: *in.ReplyToID}
}

func (uc *SendMessageUseCase) changed() {
	if uc.OnChange != nil {
		uc.OnChange()
	}
}

func (uc *SendMessageUseCase) record(channel string, err error) {
	if uc.Recorder != nil {
		uc.Recorder.SendCompleted(channel, err)
	}
}
