// Package token inspects bearer tokens on the client side. The client
// holds no signing secret, so claims are read without signature
// verification; the server remains the authority.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tourverse/traveler/domain"
)

// Inspector implements domain.TokenInspector.
type Inspector struct{}

// NewInspector creates a token inspector.
func NewInspector() domain.TokenInspector {
	return &Inspector{}
}

// Expired reports whether the token carries an exp claim in the past. A
// token without an exp claim is treated as unexpired; a token that does
// not parse at all is reported via domain.ErrTokenMalformed.
func (i *Inspector) Expired(tokenString string) (bool, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return true, domain.ErrTokenMalformed
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true, domain.ErrTokenMalformed
	}
	if exp == nil {
		return false, nil
	}
	return exp.Before(time.Now()), nil
}

var _ domain.TokenInspector = (*Inspector)(nil)
