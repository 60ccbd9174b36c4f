package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeliveryState tracks a client-originated message from send to server confirmation.
type DeliveryState int

const (
	DeliveryConfirmed DeliveryState = iota
	DeliveryPending
	DeliveryFailed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryFailed:
		return "failed"
	default:
		return "confirmed"
	}
}

// ReplySnapshot is the denormalized copy of a replied-to message carried alongside
// a reply so the context can render before the original is loaded.
type ReplySnapshot struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// Message is a single entry of a conversation as seen by the client.
// ID is zero until the server confirms the message; TempID is set only for
// locally created (optimistic) messages.
type Message struct {
	ID             int64
	TempID         string
	ConversationID int64
	Content        string
	SenderName     string
	CreatedAt      time.Time
	ReplyToID      *int64
	Replied        *ReplySnapshot
	State          DeliveryState
}

// Key identifies the message inside a timeline: the server id once confirmed,
// the temporary id before that.
func (m Message) Key() string {
	if m.ID != 0 {
		return fmt.Sprintf("%d", m.ID)
	}
	return m.TempID
}

// IsPending reports whether the message still awaits server confirmation.
func (m Message) IsPending() bool { return m.State == DeliveryPending }

// Snapshot returns the reply snapshot describing this message.
func (m Message) Snapshot() ReplySnapshot {
	return ReplySnapshot{ID: m.ID, Content: m.Content, Sender: m.SenderName}
}

// wireMessage mirrors the server representation. Sender and reply_to are kept raw
// because the API sends them either as scalars or as nested objects.
type wireMessage struct {
	ID             int64           `json:"id"`
	Conversation   json.RawMessage `json:"conversation"`
	ConversationID int64           `json:"conversation_id"`
	Content        string          `json:"content"`
	Sender         json.RawMessage `json:"sender"`
	SenderName     string          `json:"sender_name"`
	CreatedAt      json.RawMessage `json:"created_at"`
	ReplyTo        json.RawMessage `json:"reply_to"`
	Replied        *wireSnapshot   `json:"replied_message"`
}

type wireSnapshot struct {
	ID      int64           `json:"id"`
	Content string          `json:"content"`
	Sender  json.RawMessage `json:"sender"`
}

// UnmarshalJSON decodes a server message, resolving the sender to a single display
// name and the reply reference to ReplyToID / Replied.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		Content:        w.Content,
		CreatedAt:      parseTimestamp(w.CreatedAt),
		State:          DeliveryConfirmed,
	}
	if out.ConversationID == 0 && len(w.Conversation) > 0 {
		out.ConversationID = decodeRef(w.Conversation)
	}

	out.SenderName = SenderName(w.Sender)
	if out.SenderName == "" {
		out.SenderName = w.SenderName
	}

	if ref := bytes.TrimSpace(w.ReplyTo); len(ref) > 0 && !bytes.Equal(ref, []byte("null")) {
		if ref[0] == '{' {
			var nested wireSnapshot
			if err := json.Unmarshal(ref, &nested); err == nil && nested.ID != 0 {
				id := nested.ID
				out.ReplyToID = &id
				out.Replied = &ReplySnapshot{ID: nested.ID, Content: nested.Content, Sender: SenderName(nested.Sender)}
			}
		} else if id := decodeRef(ref); id != 0 {
			out.ReplyToID = &id
		}
	}
	if w.Replied != nil && w.Replied.ID != 0 {
		out.Replied = &ReplySnapshot{ID: w.Replied.ID, Content: w.Replied.Content, Sender: SenderName(w.Replied.Sender)}
		if out.ReplyToID == nil {
			id := w.Replied.ID
			out.ReplyToID = &id
		}
	}

	*m = out
	return nil
}

// timestampLayouts are tried in order. Backends without timezone support send
// naive timestamps, which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp decodes created_at. An absent or unreadable value yields the
// zero time so the message is still shown.
func parseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MarshalJSON encodes the message in the server's shape, with the sender flattened.
func (m Message) MarshalJSON() ([]byte, error) {
	type out struct {
		ID             int64          `json:"id,omitempty"`
		TempID         string         `json:"temp_id,omitempty"`
		ConversationID int64          `json:"conversation"`
		Content        string         `json:"content"`
		Sender         string         `json:"sender"`
		CreatedAt      time.Time      `json:"created_at"`
		ReplyTo        *int64         `json:"reply_to"`
		Replied        *ReplySnapshot `json:"replied_message,omitempty"`
		State          string         `json:"delivery_state"`
	}
	return json.Marshal(out{
		ID:             m.ID,
		TempID:         m.TempID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Sender:         m.SenderName,
		CreatedAt:      m.CreatedAt,
		ReplyTo:        m.ReplyToID,
		Replied:        m.Replied,
		State:          m.State.String(),
	})
}

// SenderName normalizes the sender field, which is either a plain string or an
// object exposing a username (or name).
func SenderName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{':
		var obj struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		if obj.Username != "" {
			return obj.Username
		}
		return obj.Name
	default:
		// numeric sender ids have no display name
		return string(raw)
	}
}

// decodeRef reads an id that is sent either as a number or as an object with an id.
func decodeRef(raw json.RawMessage) int64 {
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return 0
}
