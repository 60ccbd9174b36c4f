package usecase

import (
	"context"
	"fmt"

	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// ArchiveConversationInput selects the conversation to archive
type ArchiveConversationInput struct {
	ConversationID int64
}

// ArchiveConversationOutput reports what was written
type ArchiveConversationOutput struct {
	Fetched  int
	Written  int64
	Archived int64
}

// ArchiveConversationUseCase copies the confirmed history of a conversation
// into the transcript archive.
type ArchiveConversationUseCase struct {
	Repo    repository.ChatRepository
	Archive repository.ArchiveRepository
}

func NewArchiveConversationUseCase(repo repository.ChatRepository, archive repository.ArchiveRepository) *ArchiveConversationUseCase {
	return &ArchiveConversationUseCase{Repo: repo, Archive: archive}
}

// Execute fails on a failed fetch instead of archiving an empty transcript.
func (uc *ArchiveConversationUseCase) Execute(ctx context.Context, in ArchiveConversationInput) (*ArchiveConversationOutput, error) {
	if in.ConversationID <= 0 {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID)
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	written, err := uc.Archive.SaveMessages(ctx, in.ConversationID, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: archive: %v", ErrRemote, err)
	}
	total, err := uc.Archive.CountMessages(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: archive: %v", ErrRemote, err)
	}
	return &ArchiveConversationOutput{Fetched: len(msgs), Written: written, Archived: total}, nil
}
