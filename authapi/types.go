package authapi

// TokenResponse is the body returned by the login and renew endpoints.
type TokenResponse struct {
	// AccessToken is the JWT credential. Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Its "exp" claim drives renewal scheduling.
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType is the auth scheme label, "bearer" for this backend.
	// Optional on renew, where the previous label is kept.
	TokenType string `json:"token_type,omitempty"`
}

// RegisterRequest is the JSON body for /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// RegisteredUser is the optional success body of /auth/register.
type RegisteredUser struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
