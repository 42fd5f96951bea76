// Package worker supervises the whole scraping lifecycle: session
// acquisition, the concurrent feed-scan task and rotation ticker, and
// coarse-grained crash recovery. Partial in-memory browser state cannot
// be resumed safely, so recovery always means closing the browser and
// starting over.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/itteamcrypto-ai/x-scraper/internal/notify"
	"github.com/itteamcrypto-ai/x-scraper/internal/pipeline"
	"github.com/itteamcrypto-ai/x-scraper/internal/scanner"
	"github.com/itteamcrypto-ai/x-scraper/internal/scheduler"
	"github.com/itteamcrypto-ai/x-scraper/internal/session"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

// Config tunes the supervisor.
type Config struct {
	// ScanInterval is the rotation tick period.
	ScanInterval time.Duration
	// RestartDelay is the pause before restarting after a fatal failure.
	RestartDelay time.Duration
	// LockoutDelay is the longer pause after a subscription lockout,
	// where immediate re-login cannot help.
	LockoutDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.ScanInterval == 0 {
		c.ScanInterval = 4 * time.Minute
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = 10 * time.Second
	}
	if c.LockoutDelay == 0 {
		c.LockoutDelay = 10 * time.Minute
	}
}

// Supervisor runs worker cycles until cancelled.
type Supervisor struct {
	sessions *session.Manager
	store    store.Store
	pipeline *pipeline.Pipeline
	notifier notify.Notifier
	cfg      Config
	runID    string
}

// New builds a supervisor.
func New(sessions *session.Manager, st store.Store, pl *pipeline.Pipeline, no notify.Notifier, cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		sessions: sessions,
		store:    st,
		pipeline: pl,
		notifier: no,
		cfg:      cfg,
		runID:    uuid.New().String(),
	}
}

// Run loops worker cycles until the context is cancelled. Each cycle
// failure is reported to the errors channel and followed by a fixed
// restart delay.
func (s *Supervisor) Run(ctx context.Context) error {
	logrus.Infof("Worker supervisor starting, run %s", s.runID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runCycle(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			return ctx.Err()

		case errors.Is(err, session.ErrLocked):
			logrus.Error("Account locked out, backing off without re-login")
			s.alert(ctx, "Account lockout", "Session validation hit the subscription wall; worker is backing off.")
			if err := sleep(ctx, s.cfg.LockoutDelay); err != nil {
				return err
			}

		default:
			logrus.WithError(err).Error("Worker cycle failed, restarting")
			s.alert(ctx, "Worker restart", err.Error())
			if err := sleep(ctx, s.cfg.RestartDelay); err != nil {
				return err
			}
		}
	}
}

// runCycle acquires one session and drives it until a fatal error or
// cancellation.
func (s *Supervisor) runCycle(ctx context.Context) error {
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	feed := scanner.NewFeedScanner(sess.Browser, s.store, s.pipeline)
	deep := scanner.NewDeepScanner(sess.Browser, s.pipeline, s.pipeline)
	rotation := scheduler.New(s.store, s.store, deep)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error { return rotation.Run(gctx, s.cfg.ScanInterval) })
	return g.Wait()
}

func (s *Supervisor) alert(ctx context.Context, title, body string) {
	msg := notify.Message{
		Title:  title,
		Body:   body,
		Fields: []notify.Field{{Name: "Run", Value: s.runID}},
	}
	if err := s.notifier.Post(ctx, notify.ChannelErrors, msg); err != nil {
		logrus.WithError(err).Error("Error notification failed")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
