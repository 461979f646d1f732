package config

type SecurityConfig interface {
	GetJWKSURL() string
	GetVerifySignatures() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetJWKSURL returns the key set used to verify credential signatures.
// Empty means tokens are decoded without verification.
func (Security) GetJWKSURL() string {
	return GetEnv("SESSION_JWKS_URL", "")
}

func (s Security) GetVerifySignatures() bool {
	return s.GetJWKSURL() != ""
}
