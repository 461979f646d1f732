package credentials

import (
	"time"

	"golang.org/x/oauth2"
)

const (
	// Fixed keys of the two persisted values.
	TokenKey     = "accessToken"
	TokenTypeKey = "tokenType"

	DefaultTokenType = "bearer"
)

// Credential is the bearer token and its auth-scheme label.
type Credential struct {
	Token     string `json:"accessToken"`
	TokenType string `json:"tokenType"`
}

// Valid reports whether both persisted values are present.
func (c Credential) Valid() bool {
	return c.Token != "" && c.TokenType != ""
}

// OAuth2Token converts the credential for use with golang.org/x/oauth2,
// which normalises the scheme label when setting the Authorization header.
func (c Credential) OAuth2Token(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   c.TokenType,
		Expiry:      expiry,
	}
}

// Store persists the current credential. Implementations must make writes
// visible to the next Load immediately.
type Store interface {
	// Load returns errors.ErrNotFound when no credential is stored.
	Load() (*Credential, error)
	Save(cred Credential) error
	Clear() error
}
