// Package repositorytest provides an in-memory ChatRepository for tests.
package repositorytest

import (
	"context"
	"sync"
	"time"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	ConversationID int64
	Content        string
	ReplyToID      *int64
}

// FakeRepository is a scriptable repository.ChatRepository. Err* fields make the
// matching call fail; Gate, when set, blocks ListMessages until it is closed.
type FakeRepository struct {
	mu sync.Mutex

	Conversations []chat.Conversation
	Messages      map[int64][]chat.Message
	Users         []chat.User

	ErrList   error
	ErrSend   error
	ErrCreate error
	Gate      chan struct{}

	Sent         []SentMessage
	ListCalls    map[int64]int
	nextID       int64
}

// NewFakeRepository returns an empty fake whose server ids start at 1000.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		Messages:  make(map[int64][]chat.Message),
		ListCalls: make(map[int64]int),
		nextID:    1000,
	}
}

var _ repository.ChatRepository = (*FakeRepository)(nil)

// AddMessage appends a server-side message to conversationID.
func (f *FakeRepository) AddMessage(conversationID, id int64, content, sender string) chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := chat.Message{ID: id, ConversationID: conversationID, Content: content, SenderName: sender, State: chat.DeliveryConfirmed}
	f.Messages[conversationID] = append(f.Messages[conversationID], m)
	return m
}

// SetListError makes list calls fail with err.
func (f *FakeRepository) SetListError(err error) {
	f.mu.Lock()
	f.ErrList = err
	f.mu.Unlock()
}

// SetSendError makes SendMessage fail with err.
func (f *FakeRepository) SetSendError(err error) {
	f.mu.Lock()
	f.ErrSend = err
	f.mu.Unlock()
}

// Calls returns how many times ListMessages ran for conversationID.
func (f *FakeRepository) Calls(conversationID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListCalls[conversationID]
}

// SentMessages returns a copy of every SendMessage call.
func (f *FakeRepository) SentMessages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Sent...)
}

func (f *FakeRepository) ListConversations(context.Context) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrList != nil {
		return []chat.Conversation{}, f.ErrList
	}
	return append([]chat.Conversation{}, f.Conversations...), nil
}

func (f *FakeRepository) CreateDirectConversation(_ context.Context, userID int64) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCreate != nil {
		return chat.Conversation{}, f.ErrCreate
	}
	f.nextID++
	conv := chat.Conversation{ID: f.nextID, Members: []chat.User{{ID: userID}}}
	f.Conversations = append(f.Conversations, conv)
	return conv, nil
}

func (f *FakeRepository) CreateGroupConversation(_ context.Context, title string, memberIDs []int64) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCreate != nil {
		return chat.Conversation{}, f.ErrCreate
	}
	f.nextID++
	conv := chat.Conversation{ID: f.nextID, IsGroup: true, Title: title}
	for _, id := range memberIDs {
		conv.Members = append(conv.Members, chat.User{ID: id})
	}
	f.Conversations = append(f.Conversations, conv)
	return conv, nil
}

func (f *FakeRepository) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	f.mu.Lock()
	f.ListCalls[conversationID]++
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return []chat.Message{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrList != nil {
		return []chat.Message{}, f.ErrList
	}
	return append([]chat.Message{}, f.Messages[conversationID]...), nil
}

func (f *FakeRepository) SendMessage(_ context.Context, conversationID int64, content string, replyToID *int64) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, SentMessage{ConversationID: conversationID, Content: content, ReplyToID: replyToID})
	if f.ErrSend != nil {
		return chat.Message{}, f.ErrSend
	}
	f.nextID++
	m := chat.Message{
		ID:             f.nextID,
		ConversationID: conversationID,
		Content:        content,
		SenderName:     "me",
		CreatedAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		ReplyToID:      replyToID,
		State:          chat.DeliveryConfirmed,
	}
	f.Messages[conversationID] = append(f.Messages[conversationID], m)
	return m, nil
}

func (f *FakeRepository) ListUsers(context.Context) ([]chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrList != nil {
		return []chat.User{}, f.ErrList
	}
	return append([]chat.User{}, f.Users...), nil
}
