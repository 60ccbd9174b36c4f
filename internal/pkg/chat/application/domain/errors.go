package chat

import "errors"

// Domain-level errors for chat client behaviors
var (
	ErrAuthRequired = errors.New("chat: authentication token is required")
	ErrUnauthorized = errors.New("chat: authentication rejected by server")
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrNoSession    = errors.New("chat: no conversation is open")
)

// MaxContentLength is the longest message the input layer accepts.
const MaxContentLength = 1000
