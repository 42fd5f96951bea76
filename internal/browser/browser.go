// Package browser wraps headless-browser automation behind small
// interfaces so the session manager and scanners can be tested without a
// real Chrome instance.
package browser

import (
	"context"
	"time"
)

// Cookie is a browser cookie in the shape both implementations share.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Browser owns one running browser process. Pages are cheap; the browser
// itself is the expensive shared resource.
type Browser interface {
	// NewPage opens a fresh tab.
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. No page is driven by more than one concurrent
// caller.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Exists reports whether the selector matches anything right now,
	// without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// Evaluate runs the expression in the page and unmarshals the result
	// into out (pass nil to discard).
	Evaluate(ctx context.Context, expression string, out any) error
	ScrollBy(ctx context.Context, pixels int) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	Cookies(ctx context.Context) ([]Cookie, error)
	// StampHeaders injects the given headers into every subsequent request
	// whose URL contains urlSubstr.
	StampHeaders(ctx context.Context, urlSubstr string, headers map[string]string) error
	// ObserveRequestHeader watches outgoing requests whose URL contains
	// urlSubstr and delivers the first non-empty value of the named header
	// on the returned channel. Call the cancel func to unregister.
	ObserveRequestHeader(ctx context.Context, urlSubstr, header string) (<-chan string, func())
	Close() error
}
