// Package authapi is the HTTP client for the backend's login, register and
// renew endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-pdf-session/credentials"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls the backend auth endpoints. It holds no session state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client, including its timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.Logger.With().Str("component", "authapi").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login exchanges a username and password for a credential.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, RouteAuthLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeForm)

	var resp TokenResponse
	if err := c.do(req, &resp); err != nil {
		return nil, errors.Wrapf(err, "login")
	}
	if utils.Value(resp.AccessToken) == "" {
		return nil, fmt.Errorf("login: missing access_token: %w", errors.ErrInvalidResponse)
	}
	return &resp, nil
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, registration RegisterRequest) (*RegisteredUser, error) {
	body, err := json.Marshal(registration)
	if err != nil {
		return nil, fmt.Errorf("register: encode body: %w", err)
	}

	req, err := c.newRequest(ctx, RouteAuthRegister, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	var user RegisteredUser
	if err := c.do(req, &user); err != nil {
		if errors.Is(err, errors.ErrInvalidResponse) {
			// Only the status matters for a successful registration.
			return &RegisteredUser{Email: registration.Email}, nil
		}
		return nil, errors.Wrapf(err, "register")
	}
	return &user, nil
}

// Renew trades the current credential for a fresh one. A 401 or 403 comes
// back as an *APIError wrapping errors.ErrUnauthorized.
func (c *Client) Renew(ctx context.Context, cred credentials.Credential) (*TokenResponse, error) {
	req, err := c.newRequest(ctx, RouteAuthRenew, http.NoBody)
	if err != nil {
		return nil, err
	}
	cred.OAuth2Token(time.Time{}).SetAuthHeader(req)

	var resp TokenResponse
	if err := c.do(req, &resp); err != nil {
		return nil, errors.Wrapf(err, "renew")
	}
	if utils.Value(resp.AccessToken) == "" {
		return nil, fmt.Errorf("renew: missing access_token: %w", errors.ErrInvalidResponse)
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, route string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", route, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("path", req.URL.Path).Msg("request failed")
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.log.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty body: %w", errors.ErrInvalidResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, errors.ErrInvalidResponse)
	}
	return nil
}
