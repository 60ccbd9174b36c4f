package repository

import (
	"context"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

// ChatRepository is the conversation data client: conversations, messages and
// users of the remote chat API.
// List methods always return a non-nil slice; on failure the slice is empty and
// the error says why. Mutating methods propagate every failure.
type ChatRepository interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateDirectConversation(ctx context.Context, userID int64) (chat.Conversation, error)
	CreateGroupConversation(ctx context.Context, title string, memberIDs []int64) (chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error)
	SendMessage(ctx context.Context, conversationID int64, content string, replyToID *int64) (chat.Message, error)
	ListUsers(ctx context.Context) ([]chat.User, error)
}

// ArchiveRepository stores confirmed messages of a conversation transcript.
type ArchiveRepository interface {
	// SaveMessages upserts by server id and returns the number of rows written.
	SaveMessages(ctx context.Context, conversationID int64, messages []chat.Message) (int64, error)
	CountMessages(ctx context.Context, conversationID int64) (int64, error)
}
