package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string              `json:"message"`
	Data    []apperr.FieldError `json:"data,omitempty"`
}

// HTTPErrorHandler renders errors as ErrorResponse. Internal causes are logged and
// never written to the client.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "Request failed",
				"error", err,
				"method", c.Request().Method,
				"path", c.Path())
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.ErrorContext(c.Request().Context(), "Failed to write error response",
				"error", err)
		}
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, ok := httpErr.Message.(string)
		if !ok || httpErr.Code >= http.StatusInternalServerError {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, ErrorResponse{Message: msg}
	}

	appErr := apperr.As(err)
	return appErr.Kind.HTTPStatus(), ErrorResponse{
		Message: appErr.Message,
		Data:    appErr.Fields,
	}
}
