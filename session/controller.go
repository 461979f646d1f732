// Package session owns the client's bearer credential for its whole life:
// restoring it at startup, login and logout, renewal ahead of expiry, and
// publishing every change to consumers.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/claims"
	"github.com/jrsteele09/go-pdf-session/clock"
	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
	"github.com/jrsteele09/go-pdf-session/renewal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const DefaultRenewTimeout = 15 * time.Second

var _ oauth2.TokenSource = (*Controller)(nil)

// AuthAPI is the subset of the backend the controller talks to.
// *authapi.Client satisfies it.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*authapi.TokenResponse, error)
	Register(ctx context.Context, registration authapi.RegisterRequest) (*authapi.RegisteredUser, error)
	Renew(ctx context.Context, cred credentials.Credential) (*authapi.TokenResponse, error)
}

// Controller is the single owner of session state. All methods are safe for
// concurrent use.
type Controller struct {
	api          AuthAPI
	store        credentials.Store
	decoder      claims.Decoder
	clock        clock.Clock
	scheduler    *renewal.Scheduler
	renewTimeout time.Duration
	log          zerolog.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu          sync.Mutex
	state       State
	session     *Session
	loading     bool
	errMsg      string
	successMsg  string
	reason      LogoutReason
	renewingFor string // ID of the session with a renewal in flight
	epoch       uint64 // bumped by every login attempt and every logout
	version     uint64

	subsMu    sync.Mutex
	subs      map[uint64]func(Snapshot)
	nextSubID uint64

	notifyMu  sync.Mutex
	delivered uint64
}

type Option func(*Controller)

func WithDecoder(decoder claims.Decoder) Option {
	return func(c *Controller) {
		c.decoder = decoder
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithScheduler replaces the renewal scheduler. The scheduler should share
// the controller's clock.
func WithScheduler(scheduler *renewal.Scheduler) Option {
	return func(c *Controller) {
		c.scheduler = scheduler
	}
}

func WithRenewTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.renewTimeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

func NewController(api AuthAPI, store credentials.Store, options ...Option) (*Controller, error) {
	if api == nil {
		return nil, errors.New("[NewController] auth api is required")
	}
	if store == nil {
		return nil, errors.New("[NewController] credential store is required")
	}

	c := &Controller{
		api:          api,
		store:        store,
		decoder:      claims.Unverified,
		clock:        clock.System,
		renewTimeout: DefaultRenewTimeout,
		log:          log.Logger.With().Str("component", "session").Logger(),
		state:        StateUnauthenticated,
		loading:      true,
		subs:         make(map[uint64]func(Snapshot)),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = renewal.New(renewal.WithClock(c.clock), renewal.WithLogger(c.log))
	}
	if c.renewTimeout <= 0 {
		c.renewTimeout = DefaultRenewTimeout
	}
	c.baseCtx, c.cancelBase = context.WithCancel(context.Background())
	return c, nil
}

// Start restores a stored credential if it is present, decodable and not
// expired. Anything else clears the store and leaves the controller
// unauthenticated. Start never fails; problems are logged.
func (c *Controller) Start() {
	c.mu.Lock()
	c.transitionLocked(StateCheckingStoredSession)
	c.loading = true

	cred, err := c.store.Load()
	switch {
	case errors.Is(err, errors.ErrNotFound):
		c.log.Debug().Msg("no stored credential")
	case err != nil:
		c.log.Warn().Err(err).Msg("stored credential unreadable, discarding")
		c.clearStoreLocked()
	case !cred.Valid():
		c.log.Info().Msg("stored credential incomplete, discarding")
		c.clearStoreLocked()
	default:
		c.restoreLocked(*cred)
	}

	if c.session == nil {
		c.transitionLocked(StateUnauthenticated)
	}
	c.loading = false
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) restoreLocked(cred credentials.Credential) {
	cl, err := c.decoder.Decode(cred.Token)
	if err != nil {
		c.log.Info().Err(err).Msg("stored credential could not be decoded, discarding")
		c.clearStoreLocked()
		return
	}
	if cl.ExpiredAt(c.clock.Now()) {
		c.log.Info().Time("exp", cl.Expiry()).Msg("stored credential expired, discarding")
		c.clearStoreLocked()
		return
	}
	c.beginSessionLocked(cred, cl)
	c.log.Info().Str("subject", cl.Subject).Msg("session restored")
}

// Login exchanges identifier and secret for a credential. A result that
// arrives after a logout or a newer login started is dropped and
// ErrSuperseded is returned.
func (c *Controller) Login(ctx context.Context, identifier, secret string) error {
	c.mu.Lock()
	c.errMsg, c.successMsg = "", ""
	c.loading = true
	c.epoch++
	epoch := c.epoch
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)

	resp, err := c.api.Login(ctx, identifier, secret)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug().Msg("discarding superseded login result")
		return errors.ErrSuperseded
	}
	c.loading = false

	result := c.applyLoginLocked(resp, err)
	snap = c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
	return result
}

func (c *Controller) applyLoginLocked(resp *authapi.TokenResponse, err error) error {
	if err != nil {
		c.errMsg = loginFailureMessage(err)
		c.log.Info().Err(err).Msg("login failed")
		return errors.Wrapf(err, "[Controller.Login] login failed")
	}

	token := utils.Value(resp.AccessToken)
	cl, err := c.decoder.Decode(token)
	if err != nil {
		c.errMsg = MsgInvalidLoginToken
		c.log.Warn().Err(err).Msg("login returned an undecodable token")
		return errors.Wrapf(err, "[Controller.Login] invalid token")
	}

	cred := credentials.Credential{
		Token:     token,
		TokenType: utils.FirstNonEmpty(resp.TokenType, credentials.DefaultTokenType),
	}
	c.saveLocked(cred)
	c.reason = LogoutReasonNone
	if !c.beginSessionLocked(cred, cl) {
		return errors.Wrapf(errors.ErrTokenExpired, "[Controller.Login] issued token")
	}
	c.log.Info().Str("subject", cl.Subject).Str("role", cl.Role).Msg("logged in")
	return nil
}

// Register creates an account. It never logs the user in.
func (c *Controller) Register(ctx context.Context, fullName, email, password string) error {
	c.mu.Lock()
	c.errMsg, c.successMsg = "", ""
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)

	_, err := c.api.Register(ctx, authapi.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	})

	c.mu.Lock()
	if err != nil {
		c.errMsg = registrationFailureMessage(err)
		c.log.Info().Err(err).Msg("registration failed")
	} else {
		c.successMsg = MsgRegistered
	}
	snap = c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
	return errors.Wrapf(err, "[Controller.Register] registration failed")
}

// Logout ends the session from any state. It is idempotent.
func (c *Controller) Logout() {
	c.mu.Lock()
	c.endSessionLocked(LogoutReasonUserRequested, "")
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.log.Info().Msg("logged out")
}

// Close stops the renewal timer and aborts in-flight renewals. The stored
// credential is left in place for the next Start.
func (c *Controller) Close() {
	c.scheduler.Cancel()
	c.cancelBase()
}

func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	sess := *c.session
	return &sess
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Role
}

// RequireRole returns ErrNoSession when logged out and ErrForbidden when the
// session's role does not match.
func (c *Controller) RequireRole(role string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return errors.ErrNoSession
	}
	if c.session.Role != role {
		return errors.Wrapf(errors.ErrForbidden, "role %q required", role)
	}
	return nil
}

func (c *Controller) SetError(msg string) {
	c.setMessages(msg, "")
}

func (c *Controller) SetSuccess(msg string) {
	c.setMessages("", msg)
}

func (c *Controller) ClearMessages() {
	c.setMessages("", "")
}

func (c *Controller) setMessages(errMsg, successMsg string) {
	c.mu.Lock()
	c.errMsg, c.successMsg = errMsg, successMsg
	snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Subscribe registers fn for every published snapshot. Callbacks run on the
// goroutine that made the change, in version order, and must not call back
// into the Controller synchronously.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// Token implements oauth2.TokenSource over the current session.
func (c *Controller) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.ErrNoSession
	}
	return c.session.Credential.OAuth2Token(c.session.Claims.Expiry()), nil
}

// HTTPClient returns a client that attaches the current credential to every
// request. Requests made while logged out fail with ErrNoSession.
func (c *Controller) HTTPClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: c, Base: base}}
}

// beginSessionLocked installs a new session and arms renewal for it. It
// returns false when the credential turned out to be already expired, in
// which case the session has been ended again.
func (c *Controller) beginSessionLocked(cred credentials.Credential, cl claims.Claims) bool {
	sess := &Session{
		ID:         uuid.NewString(),
		Credential: cred,
		Role:       cl.Role,
		Claims:     cl,
	}
	c.session = sess
	c.renewingFor = ""
	c.transitionLocked(StateAuthenticated)

	if c.scheduler.Arm(cl, c.renewalDue(sess.ID)) == renewal.Expired {
		c.log.Info().Time("exp", cl.Expiry()).Msg("credential expired, ending session")
		c.endSessionLocked(LogoutReasonExpired, MsgSessionExpired)
		return false
	}
	return true
}

func (c *Controller) endSessionLocked(reason LogoutReason, errMsg string) {
	c.transitionLocked(StateLoggingOut)
	c.scheduler.Cancel()
	c.clearStoreLocked()
	c.session = nil
	c.renewingFor = ""
	c.epoch++
	c.loading = false
	c.errMsg = errMsg
	c.successMsg = ""
	c.reason = reason
	c.transitionLocked(StateUnauthenticated)
}

func (c *Controller) transitionLocked(to State) {
	if c.state == to {
		return
	}
	c.log.Debug().Stringer("from", c.state).Stringer("to", to).Msg("session state")
	c.state = to
}

func (c *Controller) saveLocked(cred credentials.Credential) {
	if err := c.store.Save(cred); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist credential")
	}
}

func (c *Controller) clearStoreLocked() {
	if err := c.store.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear stored credential")
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        c.state,
		Loading:      c.loading,
		Error:        c.errMsg,
		Success:      c.successMsg,
		LogoutReason: c.reason,
		Version:      c.version,
	}
	if c.session != nil {
		sess := *c.session
		snap.Session = &sess
		snap.Role = sess.Role
	}
	return snap
}

func (c *Controller) publishLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

// notify delivers snap unless a newer snapshot has already gone out.
func (c *Controller) notify(snap Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.delivered {
		return
	}
	c.delivered = snap.Version

	c.subsMu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
