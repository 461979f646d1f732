package credentials

import (
	"sync"

	"github.com/jrsteele09/go-pdf-session/internal/errors"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps the two credential values in a map keyed like the
// file store. It does not survive a restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) Load() (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.values[TokenKey]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &Credential{Token: token, TokenType: s.values[TokenTypeKey]}, nil
}

func (s *InMemoryStore) Save(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[TokenKey] = cred.Token
	s.values[TokenTypeKey] = cred.TokenType
	return nil
}

func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, TokenKey)
	delete(s.values, TokenTypeKey)
	return nil
}
