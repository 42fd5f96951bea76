package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/api"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
	"github.com/itteamcrypto-ai/x-scraper/internal/classifier"
	"github.com/itteamcrypto-ai/x-scraper/internal/config"
	"github.com/itteamcrypto-ai/x-scraper/internal/market"
	"github.com/itteamcrypto-ai/x-scraper/internal/notify"
	"github.com/itteamcrypto-ai/x-scraper/internal/pipeline"
	"github.com/itteamcrypto-ai/x-scraper/internal/session"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
	"github.com/itteamcrypto-ai/x-scraper/internal/worker"
)

func main() {
	cfg := config.Read()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logrus.Errorf("Failed to close store: %v", err)
		}
	}()

	notifier := notify.NewDiscord(cfg.WebhookGeneral, cfg.WebhookAlerts, cfg.WebhookErrors)

	pl := pipeline.New(
		st,
		classifier.NewHTTP(cfg.AIAPIURL, cfg.AIAPIKey, cfg.AIModel),
		market.New(),
		notifier,
		pipeline.Config{
			ClassifyInterval: cfg.ClassifyInterval,
			RecoveryBatch:    cfg.RecoveryBatch,
		},
	)

	authToken, csrfToken, bearerToken := cfg.SeedCredentials()
	sessions := session.NewManager(
		func() (browser.Browser, error) { return browser.NewChrome(cfg.Headless) },
		session.NewCredentialStore(cfg.DataDir),
		session.Config{
			Username: cfg.Username,
			Password: cfg.Password,
			Seed: types.Credentials{
				AuthToken:   authToken,
				CSRFToken:   csrfToken,
				BearerToken: bearerToken,
			},
		},
	)

	go func() {
		if err := api.Start(ctx, &cfg, st); err != nil {
			logrus.Errorf("Admin API stopped: %v", err)
			stop()
		}
	}()

	sup := worker.New(sessions, st, pl, notifier, worker.Config{
		ScanInterval: cfg.ScanInterval,
	})
	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("Supervisor stopped: %v", err)
	}

	logrus.Info("Shutting down")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.MongoURI == "" {
		return store.NewMemory(), nil
	}
	return store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
}
