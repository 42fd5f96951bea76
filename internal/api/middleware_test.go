package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestAPIKeyAuthMiddleware(t *testing.T) {

	tests := []struct {
		name           string
		apiKey         string
		path           string
		headerKey      string
		headerValue    string
		expectedStatus int
	}{
		{"no api key set (open)", "", "/test", "", "", http.StatusOK},
		{"correct api key (Authorization)", "test123", "/test", "Authorization", "Bearer test123", http.StatusOK},
		{"correct api key (X-API-Key)", "test123", "/test", "X-API-Key", "test123", http.StatusOK},
		{"missing api key", "test123", "/test", "", "", http.StatusUnauthorized},
		{"wrong api key", "test123", "/test", "Authorization", "Bearer wrong", http.StatusUnauthorized},
		{"healthz exempt", "test123", HealthCheckPath, "", "", http.StatusOK},
	}

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "passed")
	}

	for _, tt := range tests {
		e := echo.New()
		e.Use(APIKeyAuthMiddleware(tt.apiKey))
		e.GET("/test", handler)
		e.GET(HealthCheckPath, handler)

		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.headerKey != "" {
			req.Header.Set(tt.headerKey, tt.headerValue)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tt.expectedStatus, rec.Code, tt.name)
	}
}
