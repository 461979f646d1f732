package claims

import (
	"encoding/json"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-pdf-session/internal/errors"
	"github.com/jrsteele09/go-pdf-session/internal/utils"
)

var (
	ErrMalformed     = fmt.Errorf("malformed token: %w", errors.ErrInvalidToken)
	ErrMissingExpiry = fmt.Errorf("token missing numeric exp claim: %w", errors.ErrInvalidToken)
)

// Decoder turns a raw credential into Claims.
type Decoder interface {
	Decode(token string) (Claims, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(token string) (Claims, error)

func (f DecoderFunc) Decode(token string) (Claims, error) {
	return f(token)
}

// Unverified is the default Decoder. It reads the payload without checking
// the signature; the backend remains the authority on whether a token is
// genuine and rejects forged tokens on the next authenticated call.
var Unverified Decoder = DecoderFunc(Decode)

var unverifiedParser = jwtlib.NewParser()

// Decode parses token as a JWT without verifying its signature.
// It never panics; every failure is returned as an error wrapping
// errors.ErrInvalidToken.
func Decode(token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, ErrMalformed
	}

	parsed, _, err := unverifiedParser.ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, ErrMalformed
	}

	exp, ok := numericClaim(mapClaims["exp"])
	if !ok {
		return Claims{}, ErrMissingExpiry
	}

	sub, _ := mapClaims["sub"].(string)
	return Claims{
		Subject:   sub,
		Role:      roleClaim(mapClaims),
		ExpiresAt: exp,
	}, nil
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	default:
		return 0, false
	}
}

func roleClaim(mapClaims jwtlib.MapClaims) string {
	if role, ok := mapClaims["role"].(string); ok && role != "" {
		return role
	}
	if roles, ok := mapClaims["roles"].([]any); ok {
		return utils.FirstNonEmpty(utils.ToStringSlice(roles)...)
	}
	return ""
}
