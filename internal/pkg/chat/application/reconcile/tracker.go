package reconcile

import "time"

type pendingEntry struct {
	tempID  string
	content string
	sentAt  time.Time
}

// Tracker remembers locally sent messages that the server has not confirmed yet,
// keyed by temporary id. Entries are kept in send order so that FindMatch can
// prefer the oldest one when identical texts are in flight.
//
// Tracker is not safe for concurrent use; Timeline serializes access to it.
type Tracker struct {
	entries []pendingEntry
	window  time.Duration
	now     func() time.Time
}

// NewTracker returns an empty tracker. A positive window excludes entries older
// than window from matching; zero keeps every entry eligible.
func NewTracker(window time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{window: window, now: now}
}

// BeginSend records tempID -> content.
func (t *Tracker) BeginSend(tempID, content string) {
	t.entries = append(t.entries, pendingEntry{tempID: tempID, content: content, sentAt: t.now()})
}

// Resolve drops the entry for tempID. Unknown ids are ignored.
func (t *Tracker) Resolve(tempID string) {
	for i, e := range t.entries {
		if e.tempID == tempID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// FindMatch returns the oldest tracked temp id whose content equals content.
func (t *Tracker) FindMatch(content string) (string, bool) {
	var cutoff time.Time
	if t.window > 0 {
		cutoff = t.now().Add(-t.window)
	}
	for _, e := range t.entries {
		if e.content != content {
			continue
		}
		if !cutoff.IsZero() && e.sentAt.Before(cutoff) {
			continue
		}
		return e.tempID, true
	}
	return "", false
}

// Len reports the number of unconfirmed entries.
func (t *Tracker) Len() int { return len(t.entries) }
