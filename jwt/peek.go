package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT reports a token that is not a three-segment JWT with JSON claims.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the subset of access-token claims the client cares about.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasExpiry reports whether the token carried an exp claim.
func (c Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Peek decodes the claims of token without verifying its signature.
func Peek(token string) (Claims, error) {
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	var registered jwt.RegisteredClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &registered); err != nil {
		return Claims{}, errors.Join(ErrNotJWT, err)
	}

	out := Claims{
		Subject: registered.Subject,
		Issuer:  registered.Issuer,
	}
	if registered.ExpiresAt != nil {
		out.ExpiresAt = registered.ExpiresAt.Time
	}
	if registered.IssuedAt != nil {
		out.IssuedAt = registered.IssuedAt.Time
	}
	return out, nil
}

// ExpiresWithin reports whether token is a JWT whose exp falls before now+skew.
// Opaque tokens and tokens without exp never report true.
func ExpiresWithin(token string, skew time.Duration, now time.Time) bool {
	if skew <= 0 {
		return false
	}
	claims, err := Peek(token)
	if err != nil || !claims.HasExpiry() {
		return false
	}
	return claims.ExpiresAt.Before(now.Add(skew))
}
