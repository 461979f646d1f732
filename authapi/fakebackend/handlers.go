package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/pdfapi"
)

type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// LoginHandler accepts the OAuth2 password form fields username and password.
func (b *Backend) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.loginCalls.Add(1)

		if err := r.ParseForm(); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		email := r.PostForm.Get("username")
		password := r.PostForm.Get("password")

		user, err := b.users.GetByEmail(email)
		if err != nil || !CheckPasswordHash(password, user.PasswordHash) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := b.IssueToken(user)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not issue token")
			return
		}
		writeJSON(w, http.StatusOK, authapi.TokenResponse{AccessToken: &token, TokenType: "bearer"})
	}
}

func (b *Backend) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, []validationIssue{
				{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"},
			})
			return
		}

		var issues []validationIssue
		if !strings.Contains(req.Email, "@") {
			issues = append(issues, validationIssue{
				Loc: []string{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error",
			})
		}
		if req.Password == "" {
			issues = append(issues, validationIssue{
				Loc: []string{"body", "password"}, Msg: "Field required", Type: "missing",
			})
		}
		if len(issues) > 0 {
			writeDetail(w, http.StatusUnprocessableEntity, issues)
			return
		}

		user, err := b.AddUser(req.Email, req.Password, req.FullName, RoleUser)
		if errors.Is(err, ErrUserExists) {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not create user")
			return
		}

		writeJSON(w, http.StatusOK, authapi.RegisteredUser{ID: b.users.Count(), Email: user.Email, Role: user.Role})
	}
}

// RenewHandler re-issues a token for the bearer's subject with a fresh expiry.
func (b *Backend) RenewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.renewCalls.Add(1)

		b.lock.Lock()
		gate := b.renewGate
		fail := b.renewFailure
		b.lock.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if fail != nil {
			writeDetail(w, fail.status, fail.detail)
			return
		}

		user, err := b.users.GetByID(subjectFrom(r.Context()))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}

		token, err := b.IssueToken(user)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not issue token")
			return
		}
		writeJSON(w, http.StatusOK, authapi.TokenResponse{AccessToken: &token, TokenType: "bearer"})
	}
}

func (b *Backend) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeDetail(w, http.StatusUnprocessableEntity, []validationIssue{
					{Loc: []string{"query", "limit"}, Msg: "Input should be a valid integer", Type: "int_parsing"},
				})
				return
			}
			limit = n
		}

		b.lock.Lock()
		all := b.history[subjectFrom(r.Context())]
		// Newest first.
		entries := make([]pdfapi.HistoryEntry, 0, len(all))
		for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
			entries = append(entries, all[i])
		}
		b.lock.Unlock()

		writeJSON(w, http.StatusOK, entries)
	}
}
