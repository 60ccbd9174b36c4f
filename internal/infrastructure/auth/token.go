// Package auth supplies the API token to the REST client and the socket.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// TokenSource yields the current API token. Clear forgets it after the server
// rejected it; Token then returns "" until a new token is stored.
type TokenSource interface {
	Token() string
	Clear()
}

// StaticToken is an in-memory TokenSource.
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

// NewStaticToken wraps token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token)}
}

var _ TokenSource = (*StaticToken)(nil)

func (s *StaticToken) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *StaticToken) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Set replaces the token.
func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// FileToken reads the token from a file on every call so that a token written by
// a login step is picked up. Clear removes the file.
type FileToken struct {
	path string
}

// NewFileToken returns a TokenSource backed by path.
func NewFileToken(path string) *FileToken { return &FileToken{path: path} }

var _ TokenSource = (*FileToken)(nil)

func (f *FileToken) Token() string {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (f *FileToken) Clear() {
	_ = os.Remove(f.path)
}

// Store writes token to the file with owner-only permissions.
func (f *FileToken) Store(token string) error {
	if err := os.WriteFile(f.path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("auth: store token: %w", err)
	}
	return nil
}

// Resolve picks the token source: an inline token wins, then the token file.
// A configured token file that does not exist yet is still returned so Store works.
func Resolve(token, tokenFile string) (TokenSource, error) {
	if strings.TrimSpace(token) != "" {
		return NewStaticToken(token), nil
	}
	if tokenFile == "" {
		return NewStaticToken(""), nil
	}
	if _, err := os.Stat(tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("auth: token file: %w", err)
	}
	return NewFileToken(tokenFile), nil
}
