package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// APIBasePath is the chat API mount point on the backend host.
const APIBasePath = "/api/chat"

// maxErrorBody caps how much of a failed response is kept in APIError.
const maxErrorBody = 512

// APIError is a non-2xx response other than 401.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat api: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("chat api: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// HTTPChatRepository implements repository.ChatRepository against the REST chat API.
type HTTPChatRepository struct {
	client  *http.Client
	baseURL *url.URL
	tokens  auth.TokenSource
	log     *zap.Logger
}

// NewHTTPChatRepository builds a client for baseURL, e.g. "https://erp.example.com".
// A nil httpClient uses a client with the given timeout.
func NewHTTPChatRepository(baseURL string, tokens auth.TokenSource, httpClient *http.Client, timeout time.Duration, log *zap.Logger) (*HTTPChatRepository, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("chat api: invalid base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("chat api: base url %q has no host", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("chat api: token source is required")
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	// only the host is kept; the API lives at a fixed path on it
	host := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return &HTTPChatRepository{client: httpClient, baseURL: host, tokens: tokens, log: log}, nil
}

// Ensure interface compliance at compile time
var _ repository.ChatRepository = (*HTTPChatRepository)(nil)

func (r *HTTPChatRepository) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	out := []chat.Conversation{}
	if err := r.list(ctx, "/conversations/", &out); err != nil {
		return []chat.Conversation{}, err
	}
	return out, nil
}

type createConversationBody struct {
	UserID  *int64  `json:"user_id,omitempty"`
	Title   string  `json:"title,omitempty"`
	IsGroup bool    `json:"is_group"`
	Members []int64 `json:"members,omitempty"`
}

func (r *HTTPChatRepository) CreateDirectConversation(ctx context.Context, userID int64) (chat.Conversation, error) {
	var conv chat.Conversation
	err := r.do(ctx, http.MethodPost, "/conversations/", createConversationBody{UserID: &userID, IsGroup: false}, &conv)
	return conv, err
}

func (r *HTTPChatRepository) CreateGroupConversation(ctx context.Context, title string, memberIDs []int64) (chat.Conversation, error) {
	var conv chat.Conversation
	body := createConversationBody{Title: title, IsGroup: true, Members: memberIDs}
	if body.Members == nil {
		body.Members = []int64{}
	}
	err := r.do(ctx, http.MethodPost, "/conversations/", body, &conv)
	return conv, err
}

func (r *HTTPChatRepository) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	out := []chat.Message{}
	path := "/conversations/" + strconv.FormatInt(conversationID, 10) + "/messages/"
	if err := r.list(ctx, path, &out); err != nil {
		return []chat.Message{}, err
	}
	for i := range out {
		if out[i].ConversationID == 0 {
			out[i].ConversationID = conversationID
		}
	}
	return out, nil
}

type sendMessageBody struct {
	Conversation int64  `json:"conversation"`
	Content      string `json:"content"`
	ReplyTo      *int64 `json:"reply_to"`
}

func (r *HTTPChatRepository) SendMessage(ctx context.Context, conversationID int64, content string, replyToID *int64) (chat.Message, error) {
	var msg chat.Message
	body := sendMessageBody{Conversation: conversationID, Content: content, ReplyTo: replyToID}
	if err := r.do(ctx, http.MethodPost, "/messages/", body, &msg); err != nil {
		return chat.Message{}, err
	}
	if msg.ConversationID == 0 {
		msg.ConversationID = conversationID
	}
	return msg, nil
}

func (r *HTTPChatRepository) ListUsers(ctx context.Context) ([]chat.User, error) {
	out := []chat.User{}
	if err := r.list(ctx, "/users/", &out); err != nil {
		return []chat.User{}, err
	}
	return out, nil
}

// list fetches a collection that comes either as a bare array or as a
// {"results": [...]} page envelope.
func (r *HTTPChatRepository) list(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := r.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	return decodeList(raw, out)
}

func decodeList(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return fmt.Errorf("chat api: decode list: %w", err)
	}
	if len(envelope.Results) == 0 || bytes.Equal(envelope.Results, []byte("null")) {
		return nil
	}
	return json.Unmarshal(envelope.Results, out)
}

func (r *HTTPChatRepository) do(ctx context.Context, method, path string, body any, out any) error {
	token := r.tokens.Token()
	if token == "" {
		return chat.ErrAuthRequired
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chat api: encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	target := r.baseURL.JoinPath(APIBasePath, path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("chat api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("chat api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("chat api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	r.log.Debug("chat api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return chat.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("chat api: decode %s %s: %w", method, path, err)
	}
	return nil
}
