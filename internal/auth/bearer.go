// Package auth verifies bearer tokens presented to the REST trigger.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is the parent of every token rejection
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken is returned when no bearer token is present
	ErrMissingToken = fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	// ErrInvalidToken is returned when the token fails verification
	ErrInvalidToken = fmt.Errorf("%w: invalid bearer token", ErrUnauthorized)
)

// KeySource returns the HMAC signing key
type KeySource func(ctx context.Context) ([]byte, error)

// Claims are the bearer token claims accepted by the trigger
type Claims struct {
	// Environment restricts the token to one deployment label when set
	Environment string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens
type Verifier struct {
	key      KeySource
	audience string
	env      string
}

// NewVerifier creates a verifier. audience is usually the application name.
func NewVerifier(key KeySource, audience, env string) *Verifier {
	return &Verifier{key: key, audience: audience, env: env}
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Verify checks the Authorization header and returns the token claims
func (v *Verifier) Verify(ctx context.Context, header string) (*Claims, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	key, err := v.key(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Environment != "" && v.env != "" && claims.Environment != v.env {
		return nil, fmt.Errorf("%w: token issued for %s", ErrInvalidToken, claims.Environment)
	}

	return claims, nil
}

// Issue signs a token for the given subject. paramctl uses it to mint trigger tokens.
func Issue(key []byte, subject, audience, env string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Environment: env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
