package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// ChromeBrowser implements Browser over a chromedp-driven Chrome process.
type ChromeBrowser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewChrome starts a Chrome process. The returned browser must be closed.
func NewChrome(headless bool) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser to actually start so failures surface here
	// instead of on the first page operation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logrus.Debug("Chrome started")
	return &ChromeBrowser{allocCtx: allocCtx, allocCancel: allocCancel, ctx: ctx, cancel: cancel}, nil
}

func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: tabCancel}, nil
}

func (b *ChromeBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	return runBound(ctx, p.ctx, timeout, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, actions...)
	})
}

// runBound executes f on a context derived from base, bounded by the
// timeout and by the caller's ctx. Caller cancellation cancels the
// action itself, so no action keeps mutating page state after its
// caller has moved on.
func runBound(ctx, base context.Context, timeout time.Duration, f func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(base)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := f(runCtx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("probe %q: %w", selector, err)
	}
	return found, nil
}

func (p *chromePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	if err := p.run(ctx, 15*time.Second, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromePage) ScrollBy(ctx context.Context, pixels int) error {
	return p.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d); undefined", pixels), nil)
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	return p.run(ctx, 10*time.Second, chromedp.ActionFunc(func(c context.Context) error {
		for _, ck := range cookies {
			err := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly).
				Do(c)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := p.run(ctx, 10*time.Second, chromedp.ActionFunc(func(c context.Context) error {
		raw, err := storage.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range raw {
			cookies = append(cookies, Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

func (p *chromePage) StampHeaders(ctx context.Context, urlSubstr string, headers map[string]string) error {
	pattern := &fetch.RequestPattern{URLPattern: "*" + urlSubstr + "*"}
	if err := p.run(ctx, 10*time.Second, fetch.Enable().WithPatterns([]*fetch.RequestPattern{pattern})); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(p.ctx)
			execCtx := cdp.WithExecutor(p.ctx, c.Target)

			merged := make([]*fetch.HeaderEntry, 0, len(paused.Request.Headers)+len(headers))
			for name, value := range paused.Request.Headers {
				if _, stamped := headers[strings.ToLower(name)]; stamped {
					continue
				}
				if s, ok := value.(string); ok {
					merged = append(merged, &fetch.HeaderEntry{Name: name, Value: s})
				}
			}
			for name, value := range headers {
				merged = append(merged, &fetch.HeaderEntry{Name: name, Value: value})
			}

			if err := fetch.ContinueRequest(paused.RequestID).WithHeaders(merged).Do(execCtx); err != nil {
				logrus.Debugf("continue intercepted request: %v", err)
			}
		}()
	})
	return nil
}

func (p *chromePage) ObserveRequestHeader(ctx context.Context, urlSubstr, header string) (<-chan string, func()) {
	out := make(chan string, 1)
	var stopped atomic.Bool
	var delivered atomic.Bool

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		if stopped.Load() || delivered.Load() {
			return
		}
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if !strings.Contains(req.Request.URL, urlSubstr) {
			return
		}
		for name, value := range req.Request.Headers {
			if !strings.EqualFold(name, header) {
				continue
			}
			if s, ok := value.(string); ok && s != "" {
				if delivered.CompareAndSwap(false, true) {
					out <- s
				}
			}
			return
		}
	})

	return out, func() { stopped.Store(true) }
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
