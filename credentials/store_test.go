package credentials_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *credentials.FileStore {
	t.Helper()
	store, err := credentials.NewFileStore(filepath.Join(t.TempDir(), "state", "credentials.json"))
	require.NoError(t, err)
	return store
}

func TestStores_Contract(t *testing.T) {
	stores := map[string]func(t *testing.T) credentials.Store{
		"memory": func(t *testing.T) credentials.Store { return credentials.NewInMemoryStore() },
		"file":   func(t *testing.T) credentials.Store { return newFileStore(t) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			_, err := store.Load()
			require.ErrorIs(t, err, errors.ErrNotFound)

			cred := credentials.Credential{Token: "token-1", TokenType: "bearer"}
			require.NoError(t, store.Save(cred))

			got, err := store.Load()
			require.NoError(t, err)
			require.Equal(t, cred, *got)

			updated := credentials.Credential{Token: "token-2", TokenType: "bearer"}
			require.NoError(t, store.Save(updated))
			got, err = store.Load()
			require.NoError(t, err)
			require.Equal(t, updated, *got, "writes are visible to the next load")

			require.NoError(t, store.Clear())
			_, err = store.Load()
			require.ErrorIs(t, err, errors.ErrNotFound)

			require.NoError(t, store.Clear(), "clearing an empty store is a no-op")
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	first, err := credentials.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(credentials.Credential{Token: "persisted", TokenType: "bearer"}))

	second, err := credentials.NewFileStore(path)
	require.NoError(t, err)
	got, err := second.Load()
	require.NoError(t, err)
	require.Equal(t, "persisted", got.Token)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"accessToken": "persisted"`)
	require.Contains(t, string(b), `"tokenType": "bearer"`)
}

func TestFileStore_CorruptFile(t *testing.T) {
	store := newFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	_, err := store.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, errors.ErrNotFound)
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	_, err := credentials.NewFileStore("  ")
	require.Error(t, err)
}

func TestCredential_OAuth2Token(t *testing.T) {
	expiry := time.Unix(1_700_000_000, 0)
	tok := credentials.Credential{Token: "abc", TokenType: "bearer"}.OAuth2Token(expiry)

	require.Equal(t, "abc", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
	require.Equal(t, expiry, tok.Expiry)
	require.True(t, credentials.Credential{Token: "abc", TokenType: "bearer"}.Valid())
	require.False(t, credentials.Credential{Token: "abc"}.Valid())
}
