package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HubStats reports live fan-out counters.
type HubStats interface {
	Len() int
	Published() uint64
	Dropped() uint64
}

func HealthCheck(stats HubStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":      "healthy",
			"service":     "nano-feed",
			"subscribers": stats.Len(),
			"published":   stats.Published(),
			"dropped":     stats.Dropped(),
		})
	}
}
