package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// UserIDKey is the echo context key holding the authenticated user id.
const UserIDKey = "userID"

// Verifier turns an Authorization header value into a user id.
type Verifier interface {
	Verify(authHeader string) (uint, error)
}

// CredentialAuth rejects requests without a valid bearer credential and stores the
// caller's id under UserIDKey. Browsers cannot set headers on a WebSocket handshake,
// so a token query parameter is accepted when the header is absent.
func CredentialAuth(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if token := strings.TrimSpace(c.QueryParam("token")); token != "" {
					header = "Bearer " + token
				}
			}

			userID, err := v.Verify(header)
			if err != nil {
				return err
			}

			c.Set(UserIDKey, userID)

			return next(c)
		}
	}
}
