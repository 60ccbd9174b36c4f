package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

// Conn is the subset of *websocket.Conn used by Connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a socket to urlStr.
type Dialer interface {
	Dial(ctx context.Context, urlStr string) (Conn, error)
}

// WebsocketDialer is the gorilla/websocket Dialer adapter.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebsocketDialer returns a dialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WebsocketDialer{Dialer: &d}
}

var _ Dialer = (*WebsocketDialer)(nil)

func (d *WebsocketDialer) Dial(ctx context.Context, urlStr string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, urlStr, d.Header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: websocket handshake returned %d", chat.ErrUnauthorized, resp.StatusCode)
		}
		return nil, err
	}
	return ws, nil
}

// SocketURL builds ws(s)://<host>/ws/chat/{conversationID}/?token=<token> from the
// backend base URL. The socket scheme mirrors the base URL's scheme.
func SocketURL(baseURL string, conversationID int64, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("realtime: parse base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("realtime: base url %q has no host", baseURL)
	}

	scheme := "ws"
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws", "":
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     "/ws/chat/" + strconv.FormatInt(conversationID, 10) + "/",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return out.String(), nil
}
