// Package auth issues and verifies the stateless bearer credentials used by
// every feed request, and hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenTTL is the lifetime of a freshly issued credential.
const DefaultTokenTTL = time.Hour

const notAuthenticated = "Not authenticated."

// Claims is the signed payload of a credential.
type Claims struct {
	UserID uint   `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 credentials with a process-wide secret.
// It holds no session state: validity is a function of signature, expiry and clock.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises a TokenManager.
type Option func(*TokenManager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a TokenManager. A non-positive ttl falls back to DefaultTokenTTL.
func NewTokenManager(secret string, ttl time.Duration, opts ...Option) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	m := &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		// Expiry is checked against m.now below, not the package-global jwt.TimeFunc.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Issue signs a credential for the identity.
func (m *TokenManager) Issue(userID uint, email string) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return token, expiresAt, nil
}

// Verify authenticates an Authorization header value and returns the identity it names.
// Every failure is reported as apperr.KindUnauthenticated.
func (m *TokenManager) Verify(authHeader string) (uint, error) {
	claims, err := m.VerifyClaims(authHeader)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// VerifyClaims is Verify returning the full claim set.
func (m *TokenManager) VerifyClaims(authHeader string) (*Claims, error) {
	raw, err := BearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthenticated(notAuthenticated)
	}

	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(m.now(), true) {
		return nil, apperr.Unauthenticated(notAuthenticated)
	}
	if claims.UserID == 0 {
		return nil, apperr.Unauthenticated(notAuthenticated)
	}

	return claims, nil
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", apperr.Unauthenticated("Not a valid authorization header.")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperr.Unauthenticated("Authorization header must be in Bearer format.")
	}

	return parts[1], nil
}
