package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// GetMessageInput selects the conversation whose history is fetched
type GetMessageInput struct {
	ConversationID int64
}

// GetMessageUseCase fetches the message history of a conversation, used both for
// the initial load and for polling while the socket is down.
type GetMessageUseCase struct {
	Repo   repository.ChatRepository
	Tokens auth.TokenSource
	Log    *zap.Logger
}

func NewGetMessageUseCase(repo repository.ChatRepository, tokens auth.TokenSource, log *zap.Logger) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo, Tokens: tokens, Log: log}
}

// Execute returns the history. Fetch failures yield an empty list and a nil
// error; authentication failures clear the token and are returned.
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	if in.ConversationID <= 0 {
		return []chat.Message{}, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID)
	return degrade(msgs, err, uc.Tokens, uc.Log, "messages")
}

// Fetch is Execute without degradation, for callers that need to tell an empty
// history apart from a failed fetch.
func (uc *GetMessageUseCase) Fetch(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	if in.ConversationID <= 0 {
		return []chat.Message{}, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID)
	if err != nil {
		if isAuthError(err) {
			if uc.Tokens != nil {
				uc.Tokens.Clear()
			}
			return []chat.Message{}, err
		}
		return []chat.Message{}, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return msgs, nil
}
