package session_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/authapi/fakebackend"
	"github.com/jrsteele09/go-pdf-session/clock/fakeclock"
	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
	"github.com/jrsteele09/go-pdf-session/renewal"
	"github.com/jrsteele09/go-pdf-session/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type loginFunc func(ctx context.Context, username, password string) (*authapi.TokenResponse, error)
type renewFunc func(ctx context.Context, cred credentials.Credential) (*authapi.TokenResponse, error)

// stubAPI is a scriptable AuthAPI.
type stubAPI struct {
	lock        sync.Mutex
	login       loginFunc
	renew       renewFunc
	registerErr error
	registered  []authapi.RegisterRequest

	loginCalls atomic.Int32
	renewCalls atomic.Int32
}

func (s *stubAPI) Login(ctx context.Context, username, password string) (*authapi.TokenResponse, error) {
	s.loginCalls.Add(1)
	s.lock.Lock()
	fn := s.login
	s.lock.Unlock()
	if fn == nil {
		return nil, &authapi.APIError{StatusCode: http.StatusUnauthorized}
	}
	return fn(ctx, username, password)
}

func (s *stubAPI) Register(_ context.Context, registration authapi.RegisterRequest) (*authapi.RegisteredUser, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.registered = append(s.registered, registration)
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &authapi.RegisteredUser{ID: 1, Email: registration.Email, Role: "user"}, nil
}

func (s *stubAPI) Renew(ctx context.Context, cred credentials.Credential) (*authapi.TokenResponse, error) {
	s.renewCalls.Add(1)
	s.lock.Lock()
	fn := s.renew
	s.lock.Unlock()
	if fn == nil {
		return nil, &authapi.APIError{StatusCode: http.StatusInternalServerError}
	}
	return fn(ctx, cred)
}

func (s *stubAPI) onLogin(fn loginFunc) {
	s.lock.Lock()
	s.login = fn
	s.lock.Unlock()
}

func (s *stubAPI) onRenew(fn renewFunc) {
	s.lock.Lock()
	s.renew = fn
	s.lock.Unlock()
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Load() (*credentials.Credential, error) { return nil, fmt.Errorf("disk on fire") }
func (failingStore) Save(credentials.Credential) error      { return fmt.Errorf("disk on fire") }
func (failingStore) Clear() error                           { return fmt.Errorf("disk on fire") }

type controllerFixture struct {
	clock  *fakeclock.FakeClock
	store  *credentials.InMemoryStore
	api    *stubAPI
	issuer *fakebackend.Backend
	ctrl   *session.Controller
}

func setupController(t *testing.T, options ...session.Option) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		clock: fakeclock.New(testNow),
		store: credentials.NewInMemoryStore(),
		api:   &stubAPI{},
	}
	f.issuer = fakebackend.New(fakebackend.WithNowFunc(f.clock.Now), fakebackend.WithLogger(zerolog.Nop()))
	f.ctrl = newController(t, f.clock, f.api, f.store, options...)
	return f
}

func newController(t *testing.T, fc *fakeclock.FakeClock, api session.AuthAPI, store credentials.Store, options ...session.Option) *session.Controller {
	t.Helper()

	scheduler := renewal.New(
		renewal.WithClock(fc),
		renewal.WithAfterFunc(fc.AfterFunc),
		renewal.WithLogger(zerolog.Nop()),
	)
	opts := append([]session.Option{
		session.WithClock(fc),
		session.WithScheduler(scheduler),
		session.WithLogger(zerolog.Nop()),
	}, options...)

	ctrl, err := session.NewController(api, store, opts...)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return ctrl
}

// token signs a credential expiring ttl from the fixture's current time.
func (f *controllerFixture) token(t *testing.T, ttl time.Duration, role string) string {
	t.Helper()
	token, err := f.issuer.IssueTokenWithExpiry("user-1", role, f.clock.Now().Add(ttl))
	require.NoError(t, err)
	return token
}

func (f *controllerFixture) storeToken(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, f.store.Save(credentials.Credential{Token: token, TokenType: "bearer"}))
}

func (f *controllerFixture) loginWith(t *testing.T, token string) {
	t.Helper()
	f.api.onLogin(respondWith(token))
	require.NoError(t, f.ctrl.Login(context.Background(), "jane@example.com", "secret"))
}

func (f *controllerFixture) requireLoggedOut(t *testing.T) {
	t.Helper()
	snap := f.ctrl.Snapshot()
	require.Equal(t, session.StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Nil(t, f.ctrl.Session())
	require.Empty(t, f.clock.Pending())
	_, err := f.store.Load()
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func (f *controllerFixture) requireSingleTimer(t *testing.T, delay time.Duration) {
	t.Helper()
	pending := f.clock.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, delay, pending[0].Delay())
}

func respondWith(token string) loginFunc {
	return func(context.Context, string, string) (*authapi.TokenResponse, error) {
		return &authapi.TokenResponse{AccessToken: utils.Ptr(token), TokenType: "bearer"}, nil
	}
}

func renewWith(token string) renewFunc {
	return func(context.Context, credentials.Credential) (*authapi.TokenResponse, error) {
		return &authapi.TokenResponse{AccessToken: utils.Ptr(token), TokenType: "bearer"}, nil
	}
}

// blockingRenew returns a renewFunc that waits for release and then answers
// with the result of next.
func blockingRenew(release <-chan struct{}, next renewFunc) renewFunc {
	return func(ctx context.Context, cred credentials.Credential) (*authapi.TokenResponse, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return next(ctx, cred)
	}
}

func TestNewController(t *testing.T) {
	_, err := session.NewController(nil, credentials.NewInMemoryStore())
	require.Error(t, err)

	_, err = session.NewController(&stubAPI{}, nil)
	require.Error(t, err)

	ctrl, err := session.NewController(&stubAPI{}, credentials.NewInMemoryStore(), session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer ctrl.Close()

	snap := ctrl.Snapshot()
	require.Equal(t, session.StateUnauthenticated, snap.State)
	require.True(t, snap.Loading)
}

func TestController_Start(t *testing.T) {
	t.Run("restores a valid stored credential", func(t *testing.T) {
		f := setupController(t)
		token := f.token(t, time.Hour, "admin")
		f.storeToken(t, token)

		f.ctrl.Start()

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.StateAuthenticated, snap.State)
		require.False(t, snap.Loading)
		require.Equal(t, "admin", snap.Role)
		require.Equal(t, token, snap.Session.Credential.Token)
		require.Equal(t, testNow.Add(time.Hour).Unix(), snap.Session.Claims.ExpiresAt)
		require.NotEmpty(t, snap.Session.ID)
		f.requireSingleTimer(t, 55*time.Minute)
		require.Zero(t, f.api.renewCalls.Load())
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := setupController(t)

		f.ctrl.Start()

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.StateUnauthenticated, snap.State)
		require.False(t, snap.Loading)
		require.Empty(t, snap.Error)
		f.requireLoggedOut(t)
	})

	t.Run("malformed stored token", func(t *testing.T) {
		f := setupController(t)
		f.storeToken(t, "not-a-jwt")

		f.ctrl.Start()

		f.requireLoggedOut(t)
		require.Empty(t, f.ctrl.Snapshot().Error)
	})

	t.Run("expired stored token", func(t *testing.T) {
		f := setupController(t)
		f.storeToken(t, f.token(t, -time.Second, "user"))

		f.ctrl.Start()

		f.requireLoggedOut(t)
	})

	t.Run("token expiring exactly now", func(t *testing.T) {
		f := setupController(t)
		f.storeToken(t, f.token(t, 0, "user"))

		f.ctrl.Start()

		f.requireLoggedOut(t)
	})

	t.Run("missing token type", func(t *testing.T) {
		f := setupController(t)
		require.NoError(t, f.store.Save(credentials.Credential{Token: f.token(t, time.Hour, "user")}))

		f.ctrl.Start()

		f.requireLoggedOut(t)
	})

	t.Run("inside the renewal buffer renews immediately", func(t *testing.T) {
		f := setupController(t)
		f.storeToken(t, f.token(t, 2*time.Minute, "user"))
		renewed := f.token(t, time.Hour, "user")
		f.api.onRenew(renewWith(renewed))

		f.ctrl.Start()

		require.Eventually(t, func() bool {
			return f.ctrl.Snapshot().Success == session.MsgSessionRenewed
		}, waitFor, tick)
		require.EqualValues(t, 1, f.api.renewCalls.Load())
		require.Equal(t, renewed, f.ctrl.Session().Credential.Token)
		f.requireSingleTimer(t, 55*time.Minute)

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, renewed, stored.Token)
	})

	t.Run("unreadable store", func(t *testing.T) {
		fc := fakeclock.New(testNow)
		ctrl := newController(t, fc, &stubAPI{}, failingStore{})

		require.NotPanics(t, ctrl.Start)

		snap := ctrl.Snapshot()
		require.Equal(t, session.StateUnauthenticated, snap.State)
		require.False(t, snap.Loading)
	})
}

func TestController_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := setupController(t)
		token := f.token(t, 15*time.Minute, "user")

		f.loginWith(t, token)

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.StateAuthenticated, snap.State)
		require.Equal(t, "user", snap.Role)
		require.False(t, snap.Loading)
		require.Empty(t, snap.Error)
		require.Equal(t, session.LogoutReasonNone, snap.LogoutReason)
		f.requireSingleTimer(t, 10*time.Minute)

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, credentials.Credential{Token: token, TokenType: "bearer"}, *stored)
	})

	t.Run("token type defaults to bearer", func(t *testing.T) {
		f := setupController(t)
		token := f.token(t, time.Hour, "")
		f.api.onLogin(func(context.Context, string, string) (*authapi.TokenResponse, error) {
			return &authapi.TokenResponse{AccessToken: utils.Ptr(token)}, nil
		})

		require.NoError(t, f.ctrl.Login(context.Background(), "jane@example.com", "secret"))

		require.Equal(t, credentials.DefaultTokenType, f.ctrl.Session().Credential.TokenType)
		require.Empty(t, f.ctrl.Role())
	})

	failures := []struct {
		name    string
		err     error
		wantMsg string
		wantIs  error
	}{
		{
			name:    "rejected with detail",
			err:     &authapi.APIError{StatusCode: http.StatusUnauthorized, Detail: "Invalid credentials"},
			wantMsg: "Invalid credentials",
			wantIs:  errors.ErrUnauthorized,
		},
		{
			name:    "rejected without detail",
			err:     &authapi.APIError{StatusCode: http.StatusBadRequest},
			wantMsg: session.MsgLoginFailed,
		},
		{
			name:    "transport failure",
			err:     fmt.Errorf("dial tcp: connection refused"),
			wantMsg: session.MsgLoginError,
		},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			f := setupController(t)
			f.api.onLogin(func(context.Context, string, string) (*authapi.TokenResponse, error) {
				return nil, tc.err
			})

			err := f.ctrl.Login(context.Background(), "jane@example.com", "wrong")
			require.Error(t, err)
			if tc.wantIs != nil {
				require.ErrorIs(t, err, tc.wantIs)
			}

			snap := f.ctrl.Snapshot()
			require.Equal(t, tc.wantMsg, snap.Error)
			require.False(t, snap.Loading)
			f.requireLoggedOut(t)
		})
	}

	t.Run("invalid token from server", func(t *testing.T) {
		f := setupController(t)
		f.api.onLogin(respondWith("garbage"))

		err := f.ctrl.Login(context.Background(), "jane@example.com", "secret")
		require.ErrorIs(t, err, errors.ErrInvalidToken)
		require.Equal(t, session.MsgInvalidLoginToken, f.ctrl.Snapshot().Error)
		f.requireLoggedOut(t)
	})

	t.Run("already expired token", func(t *testing.T) {
		f := setupController(t)
		f.api.onLogin(respondWith(f.token(t, -time.Minute, "user")))

		err := f.ctrl.Login(context.Background(), "jane@example.com", "secret")
		require.ErrorIs(t, err, errors.ErrTokenExpired)

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.MsgSessionExpired, snap.Error)
		require.Equal(t, session.LogoutReasonExpired, snap.LogoutReason)
		f.requireLoggedOut(t)
	})

	t.Run("second login replaces the timer", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		first := f.ctrl.Session().ID

		f.loginWith(t, f.token(t, time.Hour, "admin"))

		require.NotEqual(t, first, f.ctrl.Session().ID)
		require.Equal(t, "admin", f.ctrl.Role())
		f.requireSingleTimer(t, 55*time.Minute)
	})

	t.Run("logout while login is in flight", func(t *testing.T) {
		f := setupController(t)
		token := f.token(t, time.Hour, "user")
		release := make(chan struct{})
		f.api.onLogin(func(context.Context, string, string) (*authapi.TokenResponse, error) {
			<-release
			return &authapi.TokenResponse{AccessToken: utils.Ptr(token), TokenType: "bearer"}, nil
		})

		result := make(chan error, 1)
		go func() {
			result <- f.ctrl.Login(context.Background(), "jane@example.com", "secret")
		}()
		require.Eventually(t, func() bool { return f.api.loginCalls.Load() == 1 }, waitFor, tick)
		require.True(t, f.ctrl.Snapshot().Loading)

		f.ctrl.Logout()
		close(release)

		require.ErrorIs(t, <-result, errors.ErrSuperseded)
		require.False(t, f.ctrl.Snapshot().Loading)
		f.requireLoggedOut(t)
	})
}

func TestController_Register(t *testing.T) {
	t.Run("success does not log in", func(t *testing.T) {
		f := setupController(t)

		require.NoError(t, f.ctrl.Register(context.Background(), "Jane Doe", "jane@example.com", "secret"))

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.MsgRegistered, snap.Success)
		require.Empty(t, snap.Error)
		require.Nil(t, snap.Session)
		require.Equal(t, []authapi.RegisterRequest{{Email: "jane@example.com", Password: "secret", FullName: "Jane Doe"}}, f.api.registered)
	})

	t.Run("failure", func(t *testing.T) {
		f := setupController(t)
		f.api.registerErr = &authapi.APIError{StatusCode: http.StatusBadRequest, Detail: "Email already registered"}

		require.Error(t, f.ctrl.Register(context.Background(), "Jane Doe", "jane@example.com", "secret"))

		snap := f.ctrl.Snapshot()
		require.Equal(t, "Email already registered", snap.Error)
		require.Empty(t, snap.Success)
	})

	t.Run("failure without detail", func(t *testing.T) {
		f := setupController(t)
		f.api.registerErr = &authapi.APIError{StatusCode: http.StatusInternalServerError}

		require.Error(t, f.ctrl.Register(context.Background(), "Jane Doe", "jane@example.com", "secret"))
		require.Equal(t, session.MsgRegistrationFailed, f.ctrl.Snapshot().Error)
	})
}

func TestController_Logout(t *testing.T) {
	f := setupController(t)
	f.loginWith(t, f.token(t, time.Hour, "user"))
	f.ctrl.SetSuccess("done")

	f.ctrl.Logout()

	f.requireLoggedOut(t)
	snap := f.ctrl.Snapshot()
	require.Empty(t, snap.Success)
	require.Empty(t, snap.Error)
	require.Equal(t, session.LogoutReasonUserRequested, snap.LogoutReason)
	require.False(t, snap.LogoutReason.Forced())

	require.NotPanics(t, f.ctrl.Logout)
	f.requireLoggedOut(t)
}

func TestController_Renew(t *testing.T) {
	t.Run("success replaces the session", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		before := f.ctrl.Session()
		renewed := f.token(t, time.Hour, "user")
		f.api.onRenew(renewWith(renewed))

		require.NoError(t, f.ctrl.Renew(context.Background()))

		after := f.ctrl.Session()
		require.NotEqual(t, before.ID, after.ID)
		require.Equal(t, renewed, after.Credential.Token)

		snap := f.ctrl.Snapshot()
		require.Equal(t, session.StateAuthenticated, snap.State)
		require.Equal(t, session.MsgSessionRenewed, snap.Success)
		f.requireSingleTimer(t, 55*time.Minute)

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, renewed, stored.Token)
	})

	t.Run("timer fires at expiry minus buffer", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))

		f.clock.Advance(10*time.Minute - time.Second)
		require.Zero(t, f.api.renewCalls.Load())

		f.api.onRenew(renewWith(f.token(t, time.Hour+time.Second, "user")))
		f.clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return f.ctrl.Snapshot().Success == session.MsgSessionRenewed
		}, waitFor, tick)
		require.EqualValues(t, 1, f.api.renewCalls.Load())
		f.requireSingleTimer(t, 55*time.Minute)
	})

	t.Run("close during a scheduled renewal keeps the session", func(t *testing.T) {
		f := setupController(t)
		token := f.token(t, 15*time.Minute, "user")
		f.loginWith(t, token)
		f.api.onRenew(blockingRenew(make(chan struct{}), renewWith("unused")))

		f.clock.Advance(10 * time.Minute)
		require.Eventually(t, func() bool {
			return f.ctrl.Snapshot().State == session.StateRenewingInBackground
		}, waitFor, tick)

		f.ctrl.Close()

		require.Eventually(t, func() bool {
			return f.ctrl.Snapshot().State == session.StateAuthenticated
		}, waitFor, tick)
		snap := f.ctrl.Snapshot()
		require.Empty(t, snap.Error)
		require.Equal(t, session.LogoutReasonNone, snap.LogoutReason)
		require.Equal(t, token, snap.Session.Credential.Token)
		require.Empty(t, f.clock.Pending())

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, token, stored.Token)
	})

	failures := []struct {
		name       string
		respond    func(f *controllerFixture, t *testing.T) renewFunc
		wantMsg    string
		wantReason session.LogoutReason
	}{
		{
			name: "unauthorized without detail",
			respond: func(*controllerFixture, *testing.T) renewFunc {
				return func(context.Context, credentials.Credential) (*authapi.TokenResponse, error) {
					return nil, &authapi.APIError{StatusCode: http.StatusUnauthorized}
				}
			},
			wantMsg:    session.MsgSessionExpired,
			wantReason: session.LogoutReasonRenewalFailed,
		},
		{
			name: "forbidden with detail",
			respond: func(*controllerFixture, *testing.T) renewFunc {
				return func(context.Context, credentials.Credential) (*authapi.TokenResponse, error) {
					return nil, &authapi.APIError{StatusCode: http.StatusForbidden, Detail: "Could not validate credentials"}
				}
			},
			wantMsg:    "Could not validate credentials",
			wantReason: session.LogoutReasonRenewalFailed,
		},
		{
			name: "server error",
			respond: func(*controllerFixture, *testing.T) renewFunc {
				return func(context.Context, credentials.Credential) (*authapi.TokenResponse, error) {
					return nil, &authapi.APIError{StatusCode: http.StatusInternalServerError, Detail: "boom"}
				}
			},
			wantMsg:    session.MsgRenewalFailed,
			wantReason: session.LogoutReasonRenewalFailed,
		},
		{
			name: "undecodable token",
			respond: func(*controllerFixture, *testing.T) renewFunc {
				return renewWith("garbage")
			},
			wantMsg:    session.MsgInvalidRenewedToken,
			wantReason: session.LogoutReasonInvalidSession,
		},
		{
			name: "already expired token",
			respond: func(f *controllerFixture, t *testing.T) renewFunc {
				return renewWith(f.token(t, -time.Second, "user"))
			},
			wantMsg:    session.MsgSessionExpired,
			wantReason: session.LogoutReasonExpired,
		},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			f := setupController(t)
			f.loginWith(t, f.token(t, 15*time.Minute, "user"))
			f.api.onRenew(tc.respond(f, t))

			require.Error(t, f.ctrl.Renew(context.Background()))

			snap := f.ctrl.Snapshot()
			require.Equal(t, tc.wantMsg, snap.Error)
			require.Equal(t, tc.wantReason, snap.LogoutReason)
			require.True(t, snap.LogoutReason.Forced())
			f.requireLoggedOut(t)
		})
	}

	t.Run("no session", func(t *testing.T) {
		f := setupController(t)
		require.ErrorIs(t, f.ctrl.Renew(context.Background()), errors.ErrNoSession)
		require.Zero(t, f.api.renewCalls.Load())
	})

	t.Run("timeout logs out", func(t *testing.T) {
		f := setupController(t, session.WithRenewTimeout(20*time.Millisecond))
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		f.api.onRenew(blockingRenew(make(chan struct{}), renewWith("unused")))

		err := f.ctrl.Renew(context.Background())
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, session.MsgRenewalFailed, f.ctrl.Snapshot().Error)
		f.requireLoggedOut(t)
	})

	t.Run("only one renewal in flight", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		release := make(chan struct{})
		f.api.onRenew(blockingRenew(release, renewWith(f.token(t, time.Hour, "user"))))

		result := make(chan error, 1)
		go func() { result <- f.ctrl.Renew(context.Background()) }()
		require.Eventually(t, func() bool { return f.api.renewCalls.Load() == 1 }, waitFor, tick)
		require.Equal(t, session.StateRenewingInBackground, f.ctrl.Snapshot().State)

		require.ErrorIs(t, f.ctrl.Renew(context.Background()), errors.ErrRenewalInProgress)

		close(release)
		require.NoError(t, <-result)
		require.EqualValues(t, 1, f.api.renewCalls.Load())
		require.Equal(t, session.StateAuthenticated, f.ctrl.Snapshot().State)
	})

	t.Run("result after logout is discarded", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		release := make(chan struct{})
		f.api.onRenew(blockingRenew(release, renewWith(f.token(t, time.Hour, "user"))))

		result := make(chan error, 1)
		go func() { result <- f.ctrl.Renew(context.Background()) }()
		require.Eventually(t, func() bool { return f.api.renewCalls.Load() == 1 }, waitFor, tick)

		f.ctrl.Logout()
		close(release)

		require.ErrorIs(t, <-result, errors.ErrStaleResponse)
		f.requireLoggedOut(t)
		require.Empty(t, f.ctrl.Snapshot().Success)
	})

	t.Run("result after a new login is discarded", func(t *testing.T) {
		f := setupController(t)
		f.loginWith(t, f.token(t, 15*time.Minute, "user"))
		release := make(chan struct{})
		f.api.onRenew(blockingRenew(release, renewWith(f.token(t, 2*time.Hour, "user"))))

		result := make(chan error, 1)
		go func() { result <- f.ctrl.Renew(context.Background()) }()
		require.Eventually(t, func() bool { return f.api.renewCalls.Load() == 1 }, waitFor, tick)

		second := f.token(t, time.Hour, "admin")
		f.loginWith(t, second)
		close(release)

		require.ErrorIs(t, <-result, errors.ErrStaleResponse)
		require.Equal(t, second, f.ctrl.Session().Credential.Token)
		f.requireSingleTimer(t, 55*time.Minute)

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, second, stored.Token)
	})
}

func TestController_Subscribe(t *testing.T) {
	f := setupController(t)

	var lock sync.Mutex
	var seen []session.Snapshot
	unsubscribe := f.ctrl.Subscribe(func(snap session.Snapshot) {
		lock.Lock()
		seen = append(seen, snap)
		lock.Unlock()
	})

	f.ctrl.Start()
	f.loginWith(t, f.token(t, time.Hour, "user"))
	unsubscribe()
	unsubscribe()
	f.ctrl.Logout()

	lock.Lock()
	defer lock.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].Version, seen[i-1].Version)
	}
	last := seen[len(seen)-1]
	require.Equal(t, session.StateAuthenticated, last.State)
	require.True(t, last.Authenticated())
	require.False(t, last.Loading)
}

func TestController_RequireRole(t *testing.T) {
	f := setupController(t)
	require.ErrorIs(t, f.ctrl.RequireRole("admin"), errors.ErrNoSession)

	f.loginWith(t, f.token(t, time.Hour, "user"))
	require.NoError(t, f.ctrl.RequireRole("user"))
	require.ErrorIs(t, f.ctrl.RequireRole("admin"), errors.ErrForbidden)
}

func TestController_Messages(t *testing.T) {
	f := setupController(t)

	f.ctrl.SetError("upload failed")
	require.Equal(t, "upload failed", f.ctrl.Snapshot().Error)
	require.Empty(t, f.ctrl.Snapshot().Success)

	f.ctrl.SetSuccess("merged")
	require.Empty(t, f.ctrl.Snapshot().Error)
	require.Equal(t, "merged", f.ctrl.Snapshot().Success)

	f.ctrl.ClearMessages()
	require.Empty(t, f.ctrl.Snapshot().Success)
}

func TestController_HTTPClient(t *testing.T) {
	f := setupController(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	t.Cleanup(server.Close)
	client := f.ctrl.HTTPClient(nil)

	_, err := client.Get(server.URL)
	require.ErrorIs(t, err, errors.ErrNoSession)

	token := f.token(t, time.Hour, "user")
	f.loginWith(t, token)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "Bearer "+token, string(body))

	oauthToken, err := f.ctrl.Token()
	require.NoError(t, err)
	require.Equal(t, token, oauthToken.AccessToken)
	require.Equal(t, testNow.Add(time.Hour), oauthToken.Expiry)

	f.ctrl.Logout()
	_, err = client.Get(server.URL)
	require.ErrorIs(t, err, errors.ErrNoSession)
}
