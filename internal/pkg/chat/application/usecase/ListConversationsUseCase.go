package usecase

import (
	"context"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// ListConversationsUseCase returns the conversations of the current user.
// Fetch failures degrade to an empty list; only authentication failures are returned.
type ListConversationsUseCase struct {
	Repo   repository.ChatRepository
	Tokens auth.TokenSource
	Log    *zap.Logger
}

func NewListConversationsUseCase(repo repository.ChatRepository, tokens auth.TokenSource, log *zap.Logger) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo, Tokens: tokens, Log: log}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := uc.Repo.ListConversations(ctx)
	return degrade(convs, err, uc.Tokens, uc.Log, "conversations")
}
