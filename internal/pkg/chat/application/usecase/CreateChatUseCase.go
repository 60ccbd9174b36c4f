package usecase

import (
	"context"
	"fmt"
	"strings"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// CreateChatInput opens a direct conversation with UserID, or a group when
// IsGroup is set.
type CreateChatInput struct {
	IsGroup   bool    `json:"is_group"`
	UserID    int64   `json:"user_id" validate:"required_if=IsGroup false,omitempty,gt=0"`
	Title     string  `json:"title" validate:"required_if=IsGroup true,max=255"`
	MemberIDs []int64 `json:"members" validate:"required_if=IsGroup true,omitempty,min=1,unique,dive,gt=0"`
}

// CreateChatUseCase creates direct and group conversations.
// Failures are propagated: the caller must tell "nothing to show" from "action failed".
type CreateChatUseCase struct {
	Repo   repository.ChatRepository
	Tokens auth.TokenSource
}

func NewCreateChatUseCase(repo repository.ChatRepository, tokens auth.TokenSource) *CreateChatUseCase {
	return &CreateChatUseCase{Repo: repo, Tokens: tokens}
}

func (uc *CreateChatUseCase) Execute(ctx context.Context, in CreateChatInput) (*chat.Conversation, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		conv chat.Conversation
		err  error
	)
	if in.IsGroup {
		conv, err = uc.Repo.CreateGroupConversation(ctx, in.Title, in.MemberIDs)
	} else {
		conv, err = uc.Repo.CreateDirectConversation(ctx, in.UserID)
	}
	if err != nil {
		if isAuthError(err) {
			if uc.Tokens != nil {
				uc.Tokens.Clear()
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return &conv, nil
}
