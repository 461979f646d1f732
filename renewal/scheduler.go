// Package renewal decides when a credential is renewed and owns the single
// timer that triggers it.
package renewal

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-pdf-session/claims"
	"github.com/jrsteele09/go-pdf-session/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is how long before expiry renewal is attempted.
const DefaultBuffer = 5 * time.Minute

// Outcome reports what Arm did with the claims it was given.
type Outcome int

const (
	Scheduled Outcome = iota // onDue will run after the computed delay
	DueNow                   // inside the buffer window, onDue already ran
	Expired                  // already expired, onDue was not called
)

func (o Outcome) String() string {
	switch o {
	case Scheduled:
		return "scheduled"
	case DueNow:
		return "due_now"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Delay is the time from now until renewal is due: (exp - now) - buffer.
func Delay(c claims.Claims, now time.Time, buffer time.Duration) time.Duration {
	return c.Expiry().Sub(now) - buffer
}

// Scheduler holds at most one pending renewal timer. It keeps no session
// state of its own.
type Scheduler struct {
	clock     clock.Clock
	afterFunc clock.AfterFunc
	buffer    time.Duration
	log       zerolog.Logger

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithAfterFunc(f clock.AfterFunc) Option {
	return func(s *Scheduler) {
		s.afterFunc = f
	}
}

func WithBuffer(buffer time.Duration) Option {
	return func(s *Scheduler) {
		s.buffer = buffer
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.log = logger
	}
}

func New(options ...Option) *Scheduler {
	s := &Scheduler{
		clock:     clock.System,
		afterFunc: clock.SystemAfterFunc,
		buffer:    DefaultBuffer,
		log:       log.Logger.With().Str("component", "renewal").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.buffer < 0 {
		s.buffer = 0
	}
	return s
}

// Buffer returns the configured renewal buffer.
func (s *Scheduler) Buffer() time.Duration {
	return s.buffer
}

// Arm cancels any pending timer and then either schedules onDue, runs it
// immediately, or reports the claims as expired. Arm is the only way a
// timer is started.
func (s *Scheduler) Arm(c claims.Claims, onDue func()) Outcome {
	s.mu.Lock()
	s.cancelLocked()

	now := s.clock.Now()
	if c.ExpiredAt(now) {
		s.mu.Unlock()
		s.log.Debug().Int64("exp", c.ExpiresAt).Msg("credential already expired, not scheduling renewal")
		return Expired
	}

	delay := Delay(c, now, s.buffer)
	if delay <= 0 {
		s.mu.Unlock()
		s.log.Debug().Int64("exp", c.ExpiresAt).Msg("credential inside renewal buffer, renewing now")
		onDue()
		return DueNow
	}

	gen := s.gen
	s.timer = s.afterFunc(delay, func() {
		s.mu.Lock()
		if s.gen != gen || s.timer == nil {
			// Cancelled or re-armed after this timer had already fired.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.gen++
		s.mu.Unlock()
		onDue()
	})
	s.mu.Unlock()

	s.log.Debug().Dur("delay", delay).Int64("exp", c.ExpiresAt).Msg("renewal scheduled")
	return Scheduled
}

// Cancel stops the pending timer, if any. It is safe to call repeatedly.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}
