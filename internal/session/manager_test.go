package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
)

type fakePage struct {
	mu        sync.Mutex
	exists    map[string]bool
	cookies   []browser.Cookie
	injected  []browser.Cookie
	bearer    string
	navigated []string
	filled    []string
	stamped   map[string]string
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists[selector], nil
}

func (p *fakePage) Click(context.Context, string, time.Duration) error { return nil }

func (p *fakePage) Fill(_ context.Context, selector, value string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled = append(p.filled, selector+"="+value)
	return nil
}

func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }
func (p *fakePage) ScrollBy(context.Context, int) error         { return nil }

func (p *fakePage) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injected = append(p.injected, cookies...)
	return nil
}

func (p *fakePage) Cookies(context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookies, nil
}

func (p *fakePage) StampHeaders(_ context.Context, _ string, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stamped == nil {
		p.stamped = map[string]string{}
	}
	for k, v := range headers {
		p.stamped[k] = v
	}
	return nil
}

func (p *fakePage) ObserveRequestHeader(_ context.Context, _, _ string) (<-chan string, func()) {
	ch := make(chan string, 1)
	if p.bearer != "" {
		ch <- p.bearer
	}
	return ch, func() {}
}

func (p *fakePage) Close() error { return nil }

type fakeBrowser struct {
	page   *fakePage
	closed bool
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) { return b.page, nil }
func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func fastConfig() Config {
	return Config{
		Username:    "scraper",
		Password:    "hunter2",
		SettleDelay: time.Millisecond,
		BearerWait:  100 * time.Millisecond,
		NavTimeout:  time.Second,
	}
}

func newTestManager(t *testing.T, b *fakeBrowser, cfg Config) *Manager {
	t.Helper()
	return NewManager(
		func() (browser.Browser, error) { return b, nil },
		NewCredentialStore(t.TempDir()),
		cfg,
	)
}

func TestAcquireWithValidSeedSkipsLogin(t *testing.T) {
	page := &fakePage{exists: map[string]bool{}}
	b := &fakeBrowser{page: page}

	cfg := fastConfig()
	cfg.Seed = types.Credentials{AuthToken: "a", CSRFToken: "c", BearerToken: "b"}
	m := newTestManager(t, b, cfg)

	sess, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, cfg.Seed, sess.Credentials)
	assert.Empty(t, page.filled, "no login form interaction expected")
	assert.Equal(t, "Bearer b", page.stamped["authorization"])
	assert.Equal(t, "c", page.stamped["x-csrf-token"])

	var names []string
	for _, ck := range page.injected {
		names = append(names, ck.Name)
	}
	assert.ElementsMatch(t, []string{"auth_token", "ct0"}, names)
}

func TestAcquireLockedNeverLogsIn(t *testing.T) {
	page := &fakePage{exists: map[string]bool{selSubscribeAffordance: true}}
	b := &fakeBrowser{page: page}

	cfg := fastConfig()
	cfg.Seed = types.Credentials{AuthToken: "a", CSRFToken: "c", BearerToken: "b"}
	m := newTestManager(t, b, cfg)

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Empty(t, page.filled, "lockout must not trigger re-login")
	assert.True(t, b.closed)
}

func TestAcquireInvalidCredentialsFallsBackToLogin(t *testing.T) {
	page := &fakePage{
		exists: map[string]bool{selLoginRedirect: true},
		cookies: []browser.Cookie{
			{Name: "auth_token", Value: "fresh-auth"},
			{Name: "ct0", Value: "fresh-csrf"},
		},
		bearer: "Bearer fresh-bearer",
	}
	b := &fakeBrowser{page: page}

	cfg := fastConfig()
	cfg.Seed = types.Credentials{AuthToken: "stale", CSRFToken: "stale", BearerToken: "stale"}
	m := newTestManager(t, b, cfg)

	sess, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, "fresh-auth", sess.Credentials.AuthToken)
	assert.Equal(t, "fresh-csrf", sess.Credentials.CSRFToken)
	assert.Equal(t, "fresh-bearer", sess.Credentials.BearerToken)
	require.Len(t, page.filled, 2)
	assert.Contains(t, page.filled[0], "scraper")
	assert.Contains(t, page.filled[1], "hunter2")
}

func TestAcquireLoginPersistsCredentials(t *testing.T) {
	page := &fakePage{
		exists: map[string]bool{},
		cookies: []browser.Cookie{
			{Name: "auth_token", Value: "auth"},
			{Name: "ct0", Value: "csrf"},
		},
		bearer: "Bearer tok",
	}
	b := &fakeBrowser{page: page}

	dir := t.TempDir()
	m := NewManager(
		func() (browser.Browser, error) { return b, nil },
		NewCredentialStore(dir),
		fastConfig(),
	)

	sess, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	persisted, err := NewCredentialStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, sess.Credentials, persisted)
	assert.True(t, persisted.Complete())
}

func TestAcquireBearerTimeout(t *testing.T) {
	// Login succeeds but no GraphQL request ever carries the bearer.
	page := &fakePage{
		exists: map[string]bool{},
		cookies: []browser.Cookie{
			{Name: "auth_token", Value: "auth"},
			{Name: "ct0", Value: "csrf"},
		},
	}
	b := &fakeBrowser{page: page}
	m := newTestManager(t, b, fastConfig())

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrBearerNotCaptured)
	assert.True(t, b.closed)
}

func TestAcquireSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	m := NewManager(
		func() (browser.Browser, error) {
			close(started)
			<-release
			return nil, context.Canceled
		},
		NewCredentialStore(t.TempDir()),
		fastConfig(),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Acquire(context.Background())
	}()

	<-started
	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLoginInProgress)

	close(release)
	<-done
}
