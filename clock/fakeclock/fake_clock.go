package fakeclock

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-pdf-session/clock"
)

var _ clock.Clock = (*FakeClock)(nil)

// FakeClock is a manually driven clock. Timers created with AfterFunc fire
// synchronously from Advance once their deadline is reached.
type FakeClock struct {
	lock   sync.Mutex
	now    time.Time
	timers []*FakeTimer
}

func New(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *FakeClock) Set(now time.Time) {
	c.lock.Lock()
	c.now = now
	c.lock.Unlock()
}

// Advance moves the clock forward and runs every due timer in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, pending []*FakeTimer
	for _, t := range c.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.lock.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		if t.fire() {
			t.f()
		}
	}
}

// AfterFunc implements clock.AfterFunc.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.lock.Lock()
	defer c.lock.Unlock()

	t := &FakeTimer{deadline: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the timers that have neither fired nor been stopped.
func (c *FakeClock) Pending() []*FakeTimer {
	c.lock.Lock()
	defer c.lock.Unlock()

	var live []*FakeTimer
	for _, t := range c.timers {
		if t.Live() {
			live = append(live, t)
		}
	}
	return live
}

type FakeTimer struct {
	deadline time.Time
	delay    time.Duration
	f        func()

	lock    sync.Mutex
	stopped bool
	fired   bool
}

// Delay is the duration the timer was created with.
func (t *FakeTimer) Delay() time.Duration {
	return t.delay
}

func (t *FakeTimer) Live() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return !t.stopped && !t.fired
}

func (t *FakeTimer) Stopped() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopped
}

func (t *FakeTimer) Stop() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *FakeTimer) fire() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}
