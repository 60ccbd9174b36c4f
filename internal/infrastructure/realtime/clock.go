package realtime

import "time"

// Timer is a handle to a scheduled callback. Stop cancels it and reports whether
// the callback was still pending.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The reconnect and polling loops go through it so
// every scheduled callback has a handle that can be cancelled before rescheduling.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock is the Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// StopTimer cancels *t if set and clears it.
func StopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
