// Package clock is the single source of "now" for session expiry math.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain now function, such as time.Now, to Clock.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// System is the wall clock.
var System Clock = Func(time.Now)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d, in its own goroutine.
type AfterFunc func(d time.Duration, f func()) Timer

// SystemAfterFunc uses time.AfterFunc.
func SystemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
