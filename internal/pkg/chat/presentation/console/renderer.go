// Package console renders conversations to a terminal and parses the
// interactive input line.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"go-chatty-client/internal/infrastructure/realtime"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
	"go-chatty-client/internal/pkg/chat/application/session"
)

const (
	timeLayout    = "15:04"
	previewLength = 60
)

// Renderer writes chat output to w. It is safe for concurrent use; the session
// calls it from the socket reader and timers.
type Renderer struct {
	mu   sync.Mutex
	w    io.Writer
	self string
	// keys of the entries last printed, per conversation
	lastKeys map[int64][]string
}

// NewRenderer returns a Renderer for the user named self.
func NewRenderer(w io.Writer, self string) *Renderer {
	return &Renderer{w: w, self: self, lastKeys: make(map[int64][]string)}
}

var _ session.Listener = (*Renderer)(nil)

// OnTimeline prints the entries that changed since the previous call. When an
// earlier entry changed (a pending message confirmed or failed) the changed
// lines are reprinted.
func (r *Renderer) OnTimeline(conversationID int64, entries []reconcile.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.lastKeys[conversationID]
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = entryKey(e)
	}

	start := 0
	for start < len(prev) && start < len(keys) && prev[start] == keys[start] {
		start++
	}
	for _, e := range entries[start:] {
		fmt.Fprintln(r.w, FormatEntry(e))
	}
	r.lastKeys[conversationID] = keys
}

func (r *Renderer) OnState(state realtime.State) {
	r.printf("-- %s --\n", state)
}

func (r *Renderer) OnBanner(text string) {
	if text == "" {
		return
	}
	r.printf("!! %s\n", text)
}

func (r *Renderer) OnAuthFailure(err error) {
	r.printf("!! signed out: %v\n", err)
}

// Notice prints text as is.
func (r *Renderer) Notice(text string) {
	r.printf("%s\n", text)
}

// Reset forgets what was printed for conversationID.
func (r *Renderer) Reset(conversationID int64) {
	r.mu.Lock()
	delete(r.lastKeys, conversationID)
	r.mu.Unlock()
}

// Conversations prints a conversation table.
func (r *Renderer) Conversations(convs []chat.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(convs) == 0 {
		fmt.Fprintln(r.w, "No conversations.")
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTITLE\tMEMBERS")
	for _, c := range convs {
		kind := "direct"
		if c.IsGroup {
			kind = "group"
		}
		names := make([]string, 0, len(c.Members))
		for _, m := range c.Members {
			names = append(names, m.DisplayName())
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, kind, c.DisplayTitle(r.self), strings.Join(names, ", "))
	}
	_ = tw.Flush()
}

// Users prints a user table.
func (r *Renderer) Users(users []chat.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(users) == 0 {
		fmt.Fprintln(r.w, "No users.")
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.DisplayName())
	}
	_ = tw.Flush()
}

// Messages prints a whole history.
func (r *Renderer) Messages(entries []reconcile.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entries) == 0 {
		fmt.Fprintln(r.w, "No messages yet.")
		return
	}
	for _, e := range entries {
		fmt.Fprintln(r.w, FormatEntry(e))
	}
}

func (r *Renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// FormatEntry renders one message, with its reply preview on the line above.
//
//	   > alice: lunch?
//	[12:04] #57 bob: sure
//	[--:--] me: on my way (sending)
func FormatEntry(e reconcile.Entry) string {
	var b strings.Builder
	if preview := e.ReplyPreview(); preview != "" {
		b.WriteString("   > ")
		b.WriteString(truncate(preview, previewLength))
		b.WriteByte('\n')
	}

	m := e.Message
	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format(timeLayout)
	}
	b.WriteString("[" + stamp + "] ")
	if m.ID != 0 {
		fmt.Fprintf(&b, "#%d ", m.ID)
	}
	sender := m.SenderName
	if sender == "" {
		sender = "?"
	}
	b.WriteString(sender + ": " + m.Content)

	switch m.State {
	case chat.DeliveryPending:
		b.WriteString(" (sending)")
	case chat.DeliveryFailed:
		b.WriteString(" (failed)")
	}
	return b.String()
}

func entryKey(e reconcile.Entry) string {
	return e.Message.Key() + "/" + e.Message.State.String() + "/" + fmt.Sprint(e.ReplyState)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
