package session

import (
	"go-chatty-client/internal/infrastructure/realtime"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
)

// Listener is the display layer. Calls arrive from the socket reader, timers
// and the caller's goroutine, never while the session lock is held.
type Listener interface {
	// OnTimeline delivers the full view of conversationID after any change.
	OnTimeline(conversationID int64, entries []reconcile.Entry)
	OnState(state realtime.State)
	// OnBanner shows text; an empty text hides the banner.
	OnBanner(text string)
	// OnAuthFailure fires once the token was rejected and cleared.
	OnAuthFailure(err error)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Timeline    func(conversationID int64, entries []reconcile.Entry)
	State       func(state realtime.State)
	Banner      func(text string)
	AuthFailure func(err error)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) OnTimeline(conversationID int64, entries []reconcile.Entry) {
	if f.Timeline != nil {
		f.Timeline(conversationID, entries)
	}
}

func (f ListenerFuncs) OnState(state realtime.State) {
	if f.State != nil {
		f.State(state)
	}
}

func (f ListenerFuncs) OnBanner(text string) {
	if f.Banner != nil {
		f.Banner(text)
	}
}

func (f ListenerFuncs) OnAuthFailure(err error) {
	if f.AuthFailure != nil {
		f.AuthFailure(err)
	}
}
