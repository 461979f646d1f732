package session

import (
	"github.com/jrsteele09/go-pdf-session/claims"
	"github.com/jrsteele09/go-pdf-session/credentials"
)

type State int

const (
	StateUnauthenticated State = iota
	StateCheckingStoredSession
	StateAuthenticated
	StateRenewingInBackground
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCheckingStoredSession:
		return "checking_stored_session"
	case StateAuthenticated:
		return "authenticated"
	case StateRenewingInBackground:
		return "renewing"
	case StateLoggingOut:
		return "logging_out"
	}
	return "unknown"
}

// LogoutReason says why the last session ended, so consumers can send the
// user back to the login entry point.
type LogoutReason int

const (
	LogoutReasonNone LogoutReason = iota
	LogoutReasonUserRequested
	LogoutReasonExpired
	LogoutReasonInvalidSession
	LogoutReasonRenewalFailed
)

func (r LogoutReason) String() string {
	switch r {
	case LogoutReasonNone:
		return "none"
	case LogoutReasonUserRequested:
		return "user_requested"
	case LogoutReasonExpired:
		return "expired"
	case LogoutReasonInvalidSession:
		return "invalid_session"
	case LogoutReasonRenewalFailed:
		return "renewal_failed"
	}
	return "unknown"
}

// Forced reports whether the session ended without the user asking.
func (r LogoutReason) Forced() bool {
	return r == LogoutReasonExpired || r == LogoutReasonInvalidSession || r == LogoutReasonRenewalFailed
}

// Session is the in-memory "logged in" value. A new Session, with a new ID,
// is created on every login, renewal and startup restore.
type Session struct {
	ID         string
	Credential credentials.Credential
	Role       string // empty when the credential carries no role
	Claims     claims.Claims
}

// Snapshot is an immutable view of the controller handed to consumers.
// Version increases with every published change.
type Snapshot struct {
	State        State
	Session      *Session
	Role         string
	Loading      bool
	Error        string
	Success      string
	LogoutReason LogoutReason
	Version      uint64
}

// Authenticated reports whether a session exists.
func (s Snapshot) Authenticated() bool {
	return s.Session != nil
}
