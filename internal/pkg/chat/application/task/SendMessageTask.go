package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	qadapter "go-chatty-client/internal/infrastructure/queue/adapter"
	qport "go-chatty-client/internal/infrastructure/queue/port"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/usecase"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// SendMessageTaskType is the queue task name for a scheduled message send.
const SendMessageTaskType = "chat:send_message"

// SendMessageTaskPayload is the JSON payload transported via the queue.
type SendMessageTaskPayload struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	ReplyToID      *int64 `json:"replyToId,omitempty"`
}

// ScheduleSendMessage enqueues p for delivery after delay and returns the task id.
func ScheduleSendMessage(ctx context.Context, client qport.Client, p SendMessageTaskPayload, delay time.Duration) (string, error) {
	p.Content = strings.TrimSpace(p.Content)
	if p.Content == "" {
		return "", chat.ErrEmptyMessage
	}
	if p.ConversationID <= 0 {
		return "", fmt.Errorf("%w: conversation id is required", usecase.ErrInvalidInput)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return client.Enqueue(ctx, qport.Task{Type: SendMessageTaskType, Payload: body}, qport.EnqueueOption{
		ProcessIn: delay,
		MaxRetry:  5,
		Retention: 24 * time.Hour,
	})
}

// RegisterSendMessageTask binds the handler to srv. Scheduled sends have no open
// conversation view, so delivery uses the HTTP path only.
func RegisterSendMessageTask(srv qport.Server, repo repository.ChatRepository, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	srv.Register(SendMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p SendMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry
			return fmt.Errorf("%v: %w", err, qadapter.ErrSkipRetry)
		}

		uc := usecase.NewSendMessageUseCase(repo)
		uc.Log = log

		// give the API a reasonable time budget per task execution
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		msg, err := uc.Execute(ctx, usecase.SendMessageInput{
			ConversationID: p.ConversationID,
			Content:        p.Content,
			ReplyToID:      p.ReplyToID,
		})
		if err != nil {
			// a rejected token or bad input will not get better on retry
			if errors.Is(err, chat.ErrUnauthorized) || errors.Is(err, chat.ErrAuthRequired) ||
				errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, usecase.ErrInvalidInput) {
				return fmt.Errorf("%v: %w", err, qadapter.ErrSkipRetry)
			}
			return err
		}
		log.Info("scheduled message delivered", zap.Int64("conversation_id", p.ConversationID), zap.Int64("message_id", msg.ID))
		return nil
	})
}
