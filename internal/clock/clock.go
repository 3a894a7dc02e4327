// Package clock abstracts the timers used by print jobs so deadline races
// can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package print jobs depend on.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d elapses. The returned
	// Timer cancels the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports whether the call stopped
// the timer; stopping a timer that already fired or was stopped is a no-op
// returning false.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
