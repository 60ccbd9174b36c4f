package usecase

import (
	"context"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// ListUsersUseCase returns the users a conversation can be started with.
type ListUsersUseCase struct {
	Repo   repository.ChatRepository
	Tokens auth.TokenSource
	Log    *zap.Logger
}

func NewListUsersUseCase(repo repository.ChatRepository, tokens auth.TokenSource, log *zap.Logger) *ListUsersUseCase {
	return &ListUsersUseCase{Repo: repo, Tokens: tokens, Log: log}
}

func (uc *ListUsersUseCase) Execute(ctx context.Context) ([]chat.User, error) {
	users, err := uc.Repo.ListUsers(ctx)
	return degrade(users, err, uc.Tokens, uc.Log, "users")
}
