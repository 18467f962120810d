package auth

import (
	"testing"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestManager(t *testing.T, at time.Time) *TokenManager {
	t.Helper()

	m, err := NewTokenManager(testSecret, time.Hour, WithClock(fixedClock(at)))
	require.NoError(t, err)
	return m
}

func TestIssueThenVerifyWithinLifetime(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestManager(t, issuedAt)

	token, expiresAt, err := issuer.Issue(42, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(time.Hour), expiresAt)

	for _, offset := range []time.Duration{0, time.Minute, 59 * time.Minute} {
		verifier := newTestManager(t, issuedAt.Add(offset))

		userID, err := verifier.Verify("Bearer " + token)
		require.NoError(t, err, "offset %s", offset)
		assert.Equal(t, uint(42), userID)
	}
}

func TestVerifyRejectsExpiredCredential(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	token, _, err := newTestManager(t, issuedAt).Issue(42, "jane@example.com")
	require.NoError(t, err)

	verifier := newTestManager(t, issuedAt.Add(2*time.Hour))
	_, err = verifier.Verify("Bearer " + token)

	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	other, err := NewTokenManager("another-secret", time.Hour, WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, _, err := other.Issue(7, "x@example.com")
	require.NoError(t, err)

	_, err = newTestManager(t, now).Verify("Bearer " + token)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestManager(t, now).Verify("Bearer " + token)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: 7}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestManager(t, now).Verify("Bearer " + token)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	m := newTestManager(t, time.Now())

	headers := []string{
		"",
		"token-without-scheme",
		"Basic abc",
		"Bearer",
		"Bearer not.a.jwt",
		"Bearer a b",
	}

	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			_, err := m.Verify(header)
			assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
		})
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", time.Hour)
	assert.Error(t, err)
}

func TestBearerTokenIsCaseInsensitive(t *testing.T) {
	token, err := BearerToken("bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}
