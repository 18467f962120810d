package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/anonto42/nano-feed/backend/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialAuth(t *testing.T) {
	tokens, err := auth.NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	token, _, err := tokens.Issue(7, "jane@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		wantID uint
		wantOK bool
	}{
		{name: "header", header: "Bearer " + token, wantID: 7, wantOK: true},
		{name: "query token", query: "?token=" + token, wantID: 7, wantOK: true},
		{name: "header wins over query", header: "Bearer broken", query: "?token=" + token},
		{name: "missing"},
		{name: "garbage", header: "Bearer nope"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/events"+test.query, nil)
			if test.header != "" {
				req.Header.Set(echo.HeaderAuthorization, test.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			var gotID uint
			h := CredentialAuth(tokens)(func(c echo.Context) error {
				gotID = c.Get(UserIDKey).(uint)
				return nil
			})

			err := h(c)
			if test.wantOK {
				require.NoError(t, err)
				assert.Equal(t, test.wantID, gotID)
				return
			}
			assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
			assert.Zero(t, gotID)
		})
	}
}
