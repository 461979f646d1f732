package claims

import "time"

// Claims are the fields of a credential the session client relies on.
// They are derived from the token on demand and never persisted.
type Claims struct {
	Subject   string // "sub"
	Role      string // "role", or the first entry of "roles"; empty when absent
	ExpiresAt int64  // "exp", epoch seconds
}

// Expiry returns ExpiresAt as a time.Time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// ExpiredAt reports whether the claims have expired at now.
// A credential whose expiry equals now is expired.
func (c Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}

// HasRole reports whether a role claim was present.
func (c Claims) HasRole() bool {
	return c.Role != ""
}
