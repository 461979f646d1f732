package fakebackend

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssueToken signs an access token for user valid for the backend's TTL.
func (b *Backend) IssueToken(user *User) (string, error) {
	return b.IssueTokenWithExpiry(user.ID, user.Role, b.nowFunc().Add(b.tokenTTL))
}

// IssueTokenWithExpiry signs a token with an explicit expiry. An empty role
// omits the claim.
func (b *Backend) IssueTokenWithExpiry(subject, role string, exp time.Time) (string, error) {
	claims := jwtlib.MapClaims{
		"sub": subject,                   // The user the token was issued to
		"iat": int64(b.nowFunc().Unix()), // Issued At
		"exp": exp.Unix(),                // Expiry
		"jti": uuid.New().String(),       // Unique token ID
	}
	if role != "" {
		claims["role"] = role
	}

	var signed string
	var err error
	if b.signingKey != nil {
		token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
		token.Header["kid"] = b.signingKey.KeyID
		signed, err = token.SignedString(b.signingKey.PrivateKey)
	} else {
		signed, err = jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(b.secret)
	}
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// verifyToken checks the signature and expiry of a bearer token and returns
// its subject and role.
func (b *Backend) verifyToken(raw string) (subject, role string, err error) {
	method, key := jwtlib.SigningMethod(jwtlib.SigningMethodHS256), any(b.secret)
	if b.signingKey != nil {
		method, key = jwtlib.SigningMethodRS256, b.signingKey.PublicKey()
	}

	token, err := jwtlib.Parse(raw, func(*jwtlib.Token) (any, error) {
		return key, nil
	},
		jwtlib.WithValidMethods([]string{method.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(b.nowFunc),
	)
	if err != nil {
		return "", "", err
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	subject, err = mapClaims.GetSubject()
	if err != nil || subject == "" {
		return "", "", fmt.Errorf("token missing sub claim")
	}
	role, _ = mapClaims["role"].(string)
	return subject, role, nil
}
