// Package fakebackend is an in-process stand-in for the PDF backend's auth
// and history endpoints, for tests and local experiments.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/pdfapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Backend serves /auth/login, /auth/register, /auth/renew, /history/ and,
// when signing with RSA, the JWKS document.
type Backend struct {
	mux        *http.ServeMux
	users      *userRepo
	secret     []byte
	signingKey *KeyPair
	tokenTTL   time.Duration
	nowFunc    func() time.Time
	log        zerolog.Logger

	lock          sync.Mutex
	renewFailure  *failure
	renewGate     chan struct{}
	history       map[string][]pdfapi.HistoryEntry // user id -> entries
	nextHistoryID int

	loginCalls atomic.Int32
	renewCalls atomic.Int32
}

type failure struct {
	status int
	detail string
}

type Option func(*Backend)

func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokenTTL = ttl
	}
}

// WithNowFunc sets the time used for issuing and validating tokens.
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

func WithSecret(secret string) Option {
	return func(b *Backend) {
		b.secret = []byte(secret)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = logger
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		mux:      http.NewServeMux(),
		users:    newUserRepo(),
		secret:   []byte("fake-backend-secret"),
		tokenTTL: 15 * time.Minute,
		nowFunc:  time.Now,
		log:      log.Logger.With().Str("component", "fakebackend").Logger(),
		history:  make(map[string][]pdfapi.HistoryEntry),
	}
	for _, opt := range options {
		opt(b)
	}
	b.initRoutes()
	return b
}

func (b *Backend) initRoutes() {
	b.mux.HandleFunc("POST "+authapi.RouteAuthLogin, ChainMiddleware(b.LoginHandler(), b.RecoverMiddleware))
	b.mux.HandleFunc("POST "+authapi.RouteAuthRegister, ChainMiddleware(b.RegisterHandler(), b.RecoverMiddleware))
	b.mux.HandleFunc("POST "+authapi.RouteAuthRenew, ChainMiddleware(b.RenewHandler(), b.RecoverMiddleware, b.RequireBearer))
	b.mux.HandleFunc("GET "+pdfapi.RouteHistory, ChainMiddleware(b.HistoryHandler(), b.RecoverMiddleware, b.RequireBearer))
	b.mux.HandleFunc("GET "+RouteJWKS, ChainMiddleware(b.JWKSHandler(), b.RecoverMiddleware))
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// AddUser registers an account directly, bypassing /auth/register.
func (b *Backend) AddUser(email, password, fullName, role string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{Email: email, FullName: fullName, PasswordHash: hash, Role: role}
	if err := b.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (b *Backend) UserCount() int {
	return b.users.Count()
}

// FailRenewals makes every following renewal answer with status and detail.
// A zero status restores normal behaviour.
func (b *Backend) FailRenewals(status int, detail string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if status == 0 {
		b.renewFailure = nil
		return
	}
	b.renewFailure = &failure{status: status, detail: detail}
}

// HoldRenewals blocks renewal responses until the returned release func is
// called.
func (b *Backend) HoldRenewals() (release func()) {
	gate := make(chan struct{})
	b.lock.Lock()
	b.renewGate = gate
	b.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lock.Lock()
			if b.renewGate == gate {
				b.renewGate = nil
			}
			b.lock.Unlock()
			close(gate)
		})
	}
}

// AddHistory appends entries to a user's history, assigning IDs.
func (b *Backend) AddHistory(user *User, entries ...pdfapi.HistoryEntry) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, e := range entries {
		b.nextHistoryID++
		e.ID = b.nextHistoryID
		b.history[user.ID] = append(b.history[user.ID], e)
	}
}

func (b *Backend) LoginCalls() int {
	return int(b.loginCalls.Load())
}

func (b *Backend) RenewCalls() int {
	return int(b.renewCalls.Load())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
