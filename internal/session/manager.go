// Package session owns the credential/session lifecycle: loading and
// validating persisted credentials, driving the interactive login flow
// when they are stale, and distinguishing ordinary invalidity from a
// terminal subscription lockout.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
)

const (
	homeURL  = "https://x.com/home"
	loginURL = "https://x.com/i/flow/login"

	cookieDomain = ".x.com"

	// apiURLFragment matches the internal GraphQL API surface; every
	// request to it is stamped with the bearer and CSRF headers.
	apiURLFragment     = "x.com/i/api"
	graphqlURLFragment = "/i/api/graphql"

	cookieAuthToken = "auth_token"
	cookieCSRF      = "ct0"
)

// DOM probes. Site-specific and brittle; kept in one place.
const (
	selSubscribeAffordance = `a[href*="/i/premium"]`
	selLoginRedirect       = `input[autocomplete="username"], a[href="/login"]`
	selUsernameInput       = `input[autocomplete="username"]`
	selPasswordInput       = `input[name="password"]`
	selPrimaryColumn       = `div[data-testid="primaryColumn"]`
)

var (
	// ErrLoginInProgress is returned when another goroutine already holds
	// the login/validation sequence. Callers must not queue behind it.
	ErrLoginInProgress = errors.New("session acquisition already in progress")
	// ErrLocked signals the terminal subscription-required lockout.
	// Re-login cannot fix it; callers must alert and back off.
	ErrLocked = errors.New("account locked: subscription required")
	// ErrBearerNotCaptured means login completed but the bearer token was
	// never observed on an outgoing GraphQL request within the wait
	// budget. Proceeding with partial credentials is never allowed.
	ErrBearerNotCaptured = errors.New("bearer token not captured after login")
)

type validation int

const (
	validationValid validation = iota
	validationInvalid
	validationLocked
)

// Factory creates a fresh browser for one session attempt.
type Factory func() (browser.Browser, error)

// Config tunes the manager.
type Config struct {
	Username string
	Password string
	// Seed optionally pre-loads the credential triple from the
	// environment, bypassing both the file store and interactive login.
	Seed types.Credentials

	// SettleDelay is how long to wait after navigation before inspecting
	// the DOM. The target renders client-side; probing too early reads an
	// empty shell.
	SettleDelay time.Duration
	// BearerWait bounds the passive bearer-token capture after login.
	BearerWait time.Duration
	NavTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SettleDelay == 0 {
		c.SettleDelay = 5 * time.Second
	}
	if c.BearerWait == 0 {
		c.BearerWait = 30 * time.Second
	}
	if c.NavTimeout == 0 {
		c.NavTimeout = 60 * time.Second
	}
}

// Session is a validated browser session. The browser is shared by the
// feed scanner and deep scanner, which only ever open their own pages.
type Session struct {
	Browser     browser.Browser
	Credentials types.Credentials
}

// Close shuts down the underlying browser.
func (s *Session) Close() error {
	return s.Browser.Close()
}

// Manager owns at most one live login/validation sequence at a time.
type Manager struct {
	newBrowser Factory
	creds      *CredentialStore
	cfg        Config
	mu         sync.Mutex
}

// NewManager builds a Manager.
func NewManager(newBrowser Factory, creds *CredentialStore, cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{newBrowser: newBrowser, creds: creds, cfg: cfg}
}

// Acquire produces a validated session, re-authenticating interactively
// when stored credentials fail validation. Outcomes: a ready *Session;
// ErrLocked for the terminal lockout; ErrLoginInProgress when another
// acquisition holds the lock; any other error means the attempt failed
// and the browser was discarded.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if !m.mu.TryLock() {
		return nil, ErrLoginInProgress
	}
	defer m.mu.Unlock()

	b, err := m.newBrowser()
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	sess, err := m.acquire(ctx, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return sess, nil
}

func (m *Manager) acquire(ctx context.Context, b browser.Browser) (*Session, error) {
	creds := m.cfg.Seed
	if !creds.Complete() {
		var err error
		creds, err = m.creds.Load()
		if err != nil {
			logrus.WithError(err).Warn("Failed loading persisted credentials, falling back to login")
		}
	}

	if creds.Complete() {
		outcome, err := m.validate(ctx, b, creds)
		if err != nil {
			return nil, fmt.Errorf("validate session: %w", err)
		}
		switch outcome {
		case validationValid:
			logrus.Info("Stored session credentials are valid")
			return &Session{Browser: b, Credentials: creds}, nil
		case validationLocked:
			return nil, ErrLocked
		case validationInvalid:
			logrus.Warn("Stored session credentials rejected, performing full login")
		}
	} else {
		logrus.Info("No usable session credentials, performing full login")
	}

	creds, err := m.fullLogin(ctx, b)
	if err != nil {
		return nil, err
	}
	return &Session{Browser: b, Credentials: creds}, nil
}

// validate probes the authenticated home surface with the stored
// credentials injected as cookies and stamped onto API requests.
func (m *Manager) validate(ctx context.Context, b browser.Browser, creds types.Credentials) (validation, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return validationInvalid, err
	}
	defer page.Close()

	cookies := []browser.Cookie{
		{Name: cookieAuthToken, Value: creds.AuthToken, Domain: cookieDomain, Path: "/", Secure: true, HTTPOnly: true},
		{Name: cookieCSRF, Value: creds.CSRFToken, Domain: cookieDomain, Path: "/", Secure: true},
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		return validationInvalid, err
	}

	headers := map[string]string{
		"authorization": "Bearer " + creds.BearerToken,
		"x-csrf-token":  creds.CSRFToken,
	}
	if err := page.StampHeaders(ctx, apiURLFragment, headers); err != nil {
		return validationInvalid, err
	}

	if err := page.Navigate(ctx, homeURL, m.cfg.NavTimeout); err != nil {
		return validationInvalid, err
	}
	if err := sleep(ctx, m.cfg.SettleDelay); err != nil {
		return validationInvalid, err
	}

	locked, err := page.Exists(ctx, selSubscribeAffordance)
	if err != nil {
		return validationInvalid, err
	}
	if locked {
		logrus.Error("Session validation hit the subscription wall")
		return validationLocked, nil
	}

	redirected, err := page.Exists(ctx, selLoginRedirect)
	if err != nil {
		return validationInvalid, err
	}
	if redirected {
		return validationInvalid, nil
	}
	return validationValid, nil
}

// fullLogin drives the interactive credential flow end to end and
// captures all three session values: the two cookies from the browser's
// jar and the bearer token by observing the authorization header of the
// first outgoing GraphQL request after login.
func (m *Manager) fullLogin(ctx context.Context, b browser.Browser) (types.Credentials, error) {
	var creds types.Credentials
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return creds, errors.New("no login username/password configured")
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		return creds, err
	}
	defer page.Close()

	bearerCh, stopObserving := page.ObserveRequestHeader(ctx, graphqlURLFragment, "authorization")
	defer stopObserving()

	logrus.Infof("Starting interactive login for %s", m.cfg.Username)
	if err := page.Navigate(ctx, loginURL, m.cfg.NavTimeout); err != nil {
		return creds, err
	}
	// Trailing newline submits each step of the two-step flow.
	if err := page.Fill(ctx, selUsernameInput, m.cfg.Username+"\n", m.cfg.NavTimeout); err != nil {
		return creds, fmt.Errorf("enter username: %w", err)
	}
	if err := page.Fill(ctx, selPasswordInput, m.cfg.Password+"\n", m.cfg.NavTimeout); err != nil {
		return creds, fmt.Errorf("enter password: %w", err)
	}
	if err := page.WaitVisible(ctx, selPrimaryColumn, m.cfg.NavTimeout); err != nil {
		return creds, fmt.Errorf("post-login navigation: %w", err)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return creds, err
	}
	for _, ck := range cookies {
		switch ck.Name {
		case cookieAuthToken:
			creds.AuthToken = ck.Value
		case cookieCSRF:
			creds.CSRFToken = ck.Value
		}
	}
	if creds.AuthToken == "" || creds.CSRFToken == "" {
		return types.Credentials{}, errors.New("session cookies missing after login")
	}

	// The bearer token only ever travels in request headers; wait for the
	// web client to make its first GraphQL call.
	select {
	case bearer := <-bearerCh:
		creds.BearerToken = strings.TrimPrefix(bearer, "Bearer ")
	case <-time.After(m.cfg.BearerWait):
		return types.Credentials{}, ErrBearerNotCaptured
	case <-ctx.Done():
		return types.Credentials{}, ctx.Err()
	}

	if err := m.creds.Save(creds); err != nil {
		return types.Credentials{}, fmt.Errorf("persist credentials: %w", err)
	}
	logrus.Infof("Login successful for %s", m.cfg.Username)
	return creds, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
