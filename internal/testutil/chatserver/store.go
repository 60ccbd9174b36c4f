package chatserver

import (
	"errors"
	"sync"
	"time"
)

var (
	errUnknownConversation = errors.New("conversation not found")
	errUnknownUser         = errors.New("user not found")
	errNotMember           = errors.New("not a member of this conversation")
)

type user struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type conversation struct {
	ID      int64  `json:"id"`
	IsGroup bool   `json:"is_group"`
	Title   string `json:"title,omitempty"`
	Members []user `json:"members"`
}

type snapshot struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Sender  user   `json:"sender"`
}

type message struct {
	ID           int64     `json:"id"`
	Conversation int64     `json:"conversation"`
	Content      string    `json:"content"`
	Sender       user      `json:"sender"`
	CreatedAt    time.Time `json:"created_at"`
	ReplyTo      *int64    `json:"reply_to"`
	Replied      *snapshot `json:"replied_message,omitempty"`
}

// store is the server's in-memory state.
type store struct {
	mu            sync.Mutex
	seq           int64
	users         map[int64]user
	tokens        map[string]int64
	conversations map[int64]*conversation
	messages      map[int64][]message
}

func newStore() *store {
	return &store{
		users:         make(map[int64]user),
		tokens:        make(map[string]int64),
		conversations: make(map[int64]*conversation),
		messages:      make(map[int64][]message),
	}
}

func (s *store) nextIDLocked() int64 {
	s.seq++
	return s.seq
}

func (s *store) addUser(username, token string) user {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user{ID: s.nextIDLocked(), Username: username}
	s.users[u.ID] = u
	if token != "" {
		s.tokens[token] = u.ID
	}
	return u
}

func (s *store) userByToken(token string) (user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return user{}, false
	}
	return s.users[id], true
}

func (s *store) listUsers() []user {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]user, 0, len(s.users))
	for id := int64(1); id <= s.seq; id++ {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

func (s *store) createConversation(isGroup bool, title string, memberIDs []int64) (conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]user, 0, len(memberIDs))
	for _, id := range memberIDs {
		u, ok := s.users[id]
		if !ok {
			return conversation{}, errUnknownUser
		}
		members = append(members, u)
	}
	c := &conversation{ID: s.nextIDLocked(), IsGroup: isGroup, Title: title, Members: members}
	s.conversations[c.ID] = c
	return *c, nil
}

func (s *store) conversationsOf(userID int64) []conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []conversation{}
	for id := int64(1); id <= s.seq; id++ {
		c, ok := s.conversations[id]
		if ok && isMember(c, userID) {
			out = append(out, *c)
		}
	}
	return out
}

func (s *store) listMessages(conversationID, userID int64) ([]message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, errUnknownConversation
	}
	if !isMember(c, userID) {
		return nil, errNotMember
	}
	return append([]message{}, s.messages[conversationID]...), nil
}

func (s *store) addMessage(conversationID int64, sender user, content string, replyTo *int64) (message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return message{}, errUnknownConversation
	}
	if !isMember(c, sender.ID) {
		return message{}, errNotMember
	}
	m := message{
		ID:           s.nextIDLocked(),
		Conversation: conversationID,
		Content:      content,
		Sender:       sender,
		CreatedAt:    time.Now().UTC(),
		ReplyTo:      replyTo,
	}
	if replyTo != nil {
		for _, prev := range s.messages[conversationID] {
			if prev.ID == *replyTo {
				m.Replied = &snapshot{ID: prev.ID, Content: prev.Content, Sender: prev.Sender}
				break
			}
		}
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return m, nil
}

func isMember(c *conversation, userID int64) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
