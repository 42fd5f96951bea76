package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthCheckPath is the only route exempt from API key auth.
const HealthCheckPath = "/healthz"

// Healthz is a basic liveness check.
func Healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
