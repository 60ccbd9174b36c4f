package reconcile

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	chat "go-chatty-client/internal/pkg/chat/application/domain"
)

// ReplyPlaceholder is shown when a reply's target is neither loaded nor snapshotted.
const ReplyPlaceholder = "replying to a message..."

// ReplyState describes how the reply context of an entry was resolved.
type ReplyState int

const (
	ReplyNone ReplyState = iota
	ReplyResolved
	ReplyUnresolved
)

// Entry is a message plus its reply context as resolved at view time.
type Entry struct {
	Message    chat.Message
	Reply      *chat.ReplySnapshot
	ReplyState ReplyState
}

// ReplyPreview returns the text to show above a reply, or "" for non-replies.
func (e Entry) ReplyPreview() string {
	switch e.ReplyState {
	case ReplyResolved:
		return e.Reply.Sender + ": " + e.Reply.Content
	case ReplyUnresolved:
		return ReplyPlaceholder
	default:
		return ""
	}
}

// Option customizes a Timeline.
type Option func(*Timeline)

// WithPendingWindow limits how long a pending message may wait for its server echo.
func WithPendingWindow(d time.Duration) Option {
	return func(t *Timeline) { t.window = d }
}

// WithClock overrides the time source used for timestamps and the pending window.
func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// WithTempIDs overrides temporary id generation.
func WithTempIDs(gen func() string) Option {
	return func(t *Timeline) { t.newTempID = gen }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *Timeline) {
		if log != nil {
			t.log = log
		}
	}
}

// Timeline is the canonical, ordered and deduplicated message list of one
// conversation. It merges server messages with optimistic local state.
// Ordering is arrival order; messages are never re-sorted by CreatedAt.
type Timeline struct {
	mu             sync.Mutex
	conversationID int64
	messages       []chat.Message
	confirmed      map[int64]struct{}
	tracker        *Tracker

	window    time.Duration
	now       func() time.Time
	newTempID func() string
	log       *zap.Logger
}

// NewTimeline returns an empty timeline for conversationID.
func NewTimeline(conversationID int64, opts ...Option) *Timeline {
	t := &Timeline{
		conversationID: conversationID,
		confirmed:      make(map[int64]struct{}),
		now:            time.Now,
		newTempID:      func() string { return "tmp-" + uuid.NewString() },
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.tracker = NewTracker(t.window, t.now)
	return t
}

// ConversationID returns the conversation this timeline belongs to.
func (t *Timeline) ConversationID() int64 { return t.conversationID }

// OnServerMessage merges a confirmed message. A pending message with the same
// content is replaced, and a message whose id is already present is dropped.
// It reports whether the list changed.
func (t *Timeline) OnServerMessage(msg chat.Message) bool {
	if msg.ConversationID != 0 && msg.ConversationID != t.conversationID {
		t.log.Debug("dropping message for other conversation",
			zap.Int64("conversation_id", msg.ConversationID), zap.Int64("message_id", msg.ID))
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// a redelivered id must not consume a pending message
	if _, dup := t.confirmed[msg.ID]; dup && msg.ID != 0 {
		return false
	}

	changed := false
	if tempID, ok := t.tracker.FindMatch(strings.TrimSpace(msg.Content)); ok {
		t.tracker.Resolve(tempID)
		if t.removeLocked(tempID) {
			changed = true
		}
	}

	if msg.ID == 0 {
		return changed
	}

	msg.TempID = ""
	msg.State = chat.DeliveryConfirmed
	if msg.ConversationID == 0 {
		msg.ConversationID = t.conversationID
	}
	t.messages = append(t.messages, msg)
	t.confirmed[msg.ID] = struct{}{}
	return true
}

// OnLocalSend appends a pending message for content and starts tracking it.
// replyTo, when set, is copied into the message's snapshot; a snapshot carrying
// only an id sets the reference alone.
func (t *Timeline) OnLocalSend(content, sender string, replyTo *chat.ReplySnapshot) chat.Message {
	msg := chat.Message{
		TempID:         t.newTempID(),
		ConversationID: t.conversationID,
		Content:        content,
		SenderName:     sender,
		CreatedAt:      t.now(),
		State:          chat.DeliveryPending,
	}
	if replyTo != nil {
		snap := *replyTo
		id := snap.ID
		msg.ReplyToID = &id
		// an id-only reference is resolved later by View
		if snap.Content != "" || snap.Sender != "" {
			msg.Replied = &snap
		}
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.tracker.BeginSend(msg.TempID, content)
	t.mu.Unlock()
	return msg
}

// OnSendFailure flags the pending message tempID as failed. The message stays
// visible and stops being eligible for content matching.
func (t *Timeline) OnSendFailure(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(tempID)
	if i < 0 || t.messages[i].State != chat.DeliveryPending {
		return false
	}
	t.tracker.Resolve(tempID)
	t.messages[i].State = chat.DeliveryFailed
	return true
}

// Confirm swaps the pending message tempID for its server copy in place. When
// the server copy already arrived through another channel, the pending entry is
// dropped instead.
func (t *Timeline) Confirm(tempID string, msg chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(tempID)
	if i < 0 || t.messages[i].State != chat.DeliveryPending {
		return false
	}
	t.tracker.Resolve(tempID)

	if _, dup := t.confirmed[msg.ID]; dup || msg.ID == 0 {
		t.messages = append(t.messages[:i], t.messages[i+1:]...)
		return true
	}

	pending := t.messages[i]
	msg.TempID = ""
	msg.State = chat.DeliveryConfirmed
	if msg.ConversationID == 0 {
		msg.ConversationID = t.conversationID
	}
	if msg.Replied == nil {
		msg.Replied = pending.Replied
	}
	if msg.ReplyToID == nil {
		msg.ReplyToID = pending.ReplyToID
	}
	t.messages[i] = msg
	t.confirmed[msg.ID] = struct{}{}
	return true
}

// Messages returns a copy of the canonical list.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Find returns the confirmed message with the given server id.
func (t *Timeline) Find(id int64) (chat.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.messages {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

// Pending reports how many messages still await confirmation.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.Len()
}

// View resolves reply context for every message against the current list.
// Resolution is redone on each call since a referenced message may arrive later.
func (t *Timeline) View() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	byID := make(map[int64]chat.Message, len(t.confirmed))
	for _, m := range t.messages {
		if m.ID != 0 {
			byID[m.ID] = m
		}
	}

	entries := make([]Entry, 0, len(t.messages))
	for _, m := range t.messages {
		e := Entry{Message: m}
		if m.ReplyToID != nil {
			switch {
			case m.Replied != nil:
				snap := *m.Replied
				e.Reply, e.ReplyState = &snap, ReplyResolved
			default:
				if target, ok := byID[*m.ReplyToID]; ok {
					snap := target.Snapshot()
					e.Reply, e.ReplyState = &snap, ReplyResolved
				} else {
					e.ReplyState = ReplyUnresolved
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func (t *Timeline) indexLocked(tempID string) int {
	for i, m := range t.messages {
		if m.TempID == tempID && m.ID == 0 {
			return i
		}
	}
	return -1
}

func (t *Timeline) removeLocked(tempID string) bool {
	i := t.indexLocked(tempID)
	if i < 0 {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	return true
}
