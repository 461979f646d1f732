package config

import "time"

type SessionConfig interface {
	GetRenewalBuffer() time.Duration
	GetRenewTimeout() time.Duration
	GetHTTPTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetRenewalBuffer is how long before expiry a credential is renewed.
func (Session) GetRenewalBuffer() time.Duration {
	return GetDurationEnv("RENEWAL_BUFFER", 5*time.Minute)
}

func (Session) GetRenewTimeout() time.Duration {
	return GetDurationEnv("RENEW_TIMEOUT", 15*time.Second)
}

func (Session) GetHTTPTimeout() time.Duration {
	return GetDurationEnv("HTTP_TIMEOUT", 30*time.Second)
}
