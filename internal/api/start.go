package api

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/itteamcrypto-ai/x-scraper/internal/config"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

// Start runs the admin HTTP server until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, accounts store.AccountStore) error {

	// Echo instance
	e := echo.New()
	e.HideBanner = true

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuthMiddleware(cfg.APIKey))

	// Health check endpoint (no auth required)
	e.GET(HealthCheckPath, Healthz())

	if cfg.ProfilingEnabled {
		enableProfiling(e)
	}

	accountsGroup := e.Group("/accounts")
	accountsGroup.POST("", createAccount(accounts))
	accountsGroup.POST("/bulk", bulkCreateAccounts(accounts))
	accountsGroup.GET("", listAccounts(accounts))
	accountsGroup.GET("/:handle", getAccount(accounts))
	accountsGroup.PUT("/:handle", updateAccount(accounts))
	accountsGroup.DELETE("/:handle", deleteAccount(accounts))

	go func() {
		<-ctx.Done()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	e.Logger.Info(fmt.Sprintf("Starting server on %s", cfg.ListenAddress))
	return e.Start(cfg.ListenAddress)
}

// enableProfiling registers pprof endpoints and turns on the
// performance-intensive runtime probes.
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
	runtime.SetBlockProfileRate(500)
	// Fraction of contention events that are reported https://gist.github.com/andrewhodel/ed7625a14eb87404cafd37493849d1ba
	runtime.SetMutexProfileFraction(1)
	// CPU profiling rate samples per second https://gist.github.com/andrewhodel/ed7625a14eb87404cafd37493849d1ba
	runtime.SetCPUProfileRate(30)

	pprof.Register(e)
}
