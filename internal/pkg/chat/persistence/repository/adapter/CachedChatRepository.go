package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	cache "go-chatty-client/internal/infrastructure/cache/port"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// CachedChatRepository decorates a ChatRepository: successful list results are
// written to the cache, and a failed list call (other than an auth failure)
// falls back to the last cached copy. Mutations pass through untouched.
// Every key is prefixed with scope so that lists of different accounts never
// mix in a shared cache.
type CachedChatRepository struct {
	next  repository.ChatRepository
	cache cache.Cache
	scope string
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedChatRepository wraps next. A zero ttl keeps entries until overwritten.
// scope is usually built with CacheScope.
func NewCachedChatRepository(next repository.ChatRepository, c cache.Cache, scope string, ttl time.Duration, log *zap.Logger) *CachedChatRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedChatRepository{next: next, cache: c, scope: scope, ttl: ttl, log: log}
}

// CacheScope identifies an account on a backend: the API host plus a hash of
// the token. The token itself never reaches the cache.
func CacheScope(baseURL, token string) string {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	sum := sha256.Sum256([]byte(token))
	return host + ":" + hex.EncodeToString(sum[:8])
}

func (r *CachedChatRepository) key(name string) string {
	if r.scope == "" {
		return name
	}
	return r.scope + ":" + name
}

var _ repository.ChatRepository = (*CachedChatRepository)(nil)

const (
	keyConversations = "conversations"
	keyUsers         = "users"
)

func messagesKey(conversationID int64) string {
	return "messages:" + strconv.FormatInt(conversationID, 10)
}

func (r *CachedChatRepository) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := r.next.ListConversations(ctx)
	return cachedList(ctx, r, keyConversations, convs, err)
}

func (r *CachedChatRepository) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	msgs, err := r.next.ListMessages(ctx, conversationID)
	return cachedList(ctx, r, messagesKey(conversationID), msgs, err)
}

func (r *CachedChatRepository) ListUsers(ctx context.Context) ([]chat.User, error) {
	users, err := r.next.ListUsers(ctx)
	return cachedList(ctx, r, keyUsers, users, err)
}

func (r *CachedChatRepository) CreateDirectConversation(ctx context.Context, userID int64) (chat.Conversation, error) {
	conv, err := r.next.CreateDirectConversation(ctx, userID)
	if err == nil {
		r.invalidate(ctx, keyConversations)
	}
	return conv, err
}

func (r *CachedChatRepository) CreateGroupConversation(ctx context.Context, title string, memberIDs []int64) (chat.Conversation, error) {
	conv, err := r.next.CreateGroupConversation(ctx, title, memberIDs)
	if err == nil {
		r.invalidate(ctx, keyConversations)
	}
	return conv, err
}

func (r *CachedChatRepository) SendMessage(ctx context.Context, conversationID int64, content string, replyToID *int64) (chat.Message, error) {
	return r.next.SendMessage(ctx, conversationID, content, replyToID)
}

func (r *CachedChatRepository) invalidate(ctx context.Context, name string) {
	key := r.key(name)
	if _, err := r.cache.Del(ctx, key); err != nil {
		r.log.Debug("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func cachedList[T any](ctx context.Context, r *CachedChatRepository, name string, fresh []T, err error) ([]T, error) {
	key := r.key(name)
	if err == nil {
		if b, mErr := json.Marshal(fresh); mErr == nil {
			if sErr := r.cache.Set(ctx, key, string(b), r.ttl); sErr != nil {
				r.log.Debug("cache write failed", zap.String("key", key), zap.Error(sErr))
			}
		}
		return fresh, nil
	}
	if errors.Is(err, chat.ErrUnauthorized) || errors.Is(err, chat.ErrAuthRequired) {
		return fresh, err
	}

	raw, cErr := r.cache.Get(ctx, key)
	if cErr != nil {
		return fresh, err
	}
	var stale []T
	if uErr := json.Unmarshal([]byte(raw), &stale); uErr != nil {
		return fresh, err
	}
	r.log.Info("serving cached list", zap.String("key", key), zap.Error(err))
	return stale, nil
}
