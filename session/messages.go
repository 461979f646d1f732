package session

import (
	"github.com/jrsteele09/go-pdf-session/authapi"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
)

// User facing messages.
const (
	MsgLoginFailed         = "Login failed."
	MsgLoginError          = "Login error."
	MsgInvalidLoginToken   = "Received an invalid token from server."
	MsgRegistered          = "Registration successful! You can now log in."
	MsgRegistrationFailed  = "Registration failed."
	MsgRegistrationError   = "Registration error."
	MsgSessionExpired      = "Session expired. Please log in again."
	MsgRenewalFailed       = "Could not renew session. Please log in again."
	MsgInvalidRenewedToken = "Received an invalid token upon renewal. Please log in again."
	MsgSessionRenewed      = "Session renewed successfully."
)

func isAPIError(err error) bool {
	var apiErr *authapi.APIError
	return errors.As(err, &apiErr)
}

func loginFailureMessage(err error) string {
	if isAPIError(err) {
		return utils.FirstNonEmpty(authapi.Detail(err), MsgLoginFailed)
	}
	return MsgLoginError
}

func registrationFailureMessage(err error) string {
	if isAPIError(err) {
		return utils.FirstNonEmpty(authapi.Detail(err), MsgRegistrationFailed)
	}
	return MsgRegistrationError
}

func renewalFailureMessage(err error) string {
	if errors.Is(err, errors.ErrUnauthorized) {
		return utils.FirstNonEmpty(authapi.Detail(err), MsgSessionExpired)
	}
	return MsgRenewalFailed
}
