// Package scanner drives the two scraping surfaces over one shared
// browser session: the continuous home-feed loop and the per-account
// deep scan (profile plus mentions).
package scanner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

const (
	feedURL = "https://x.com/home"

	selFollowingTab = `a[href="/home"][role="tab"]:nth-of-type(2), div[role="tablist"] > div:nth-child(2)`

	feedNavTimeout  = 60 * time.Second
	feedWaitTimeout = 30 * time.Second
)

// Jitter bounds. Randomized delays are an anti-detection measure, not a
// performance choice: the spread matters, the exact bounds are tunable.
const (
	scrollDelayMin = 800 * time.Millisecond
	scrollDelayMax = 1200 * time.Millisecond
	cycleDelayMin  = 1500 * time.Millisecond
	cycleDelayMax  = 3000 * time.Millisecond
)

// Processor consumes extracted post candidates.
type Processor interface {
	Process(ctx context.Context, card types.PostCard)
}

// FeedScanner continuously samples the session owner's home timeline.
type FeedScanner struct {
	browser   browser.Browser
	store     store.PostStore
	processor Processor
	rng       *rand.Rand
}

// NewFeedScanner builds a feed scanner over the shared browser.
func NewFeedScanner(b browser.Browser, st store.PostStore, proc Processor) *FeedScanner {
	return &FeedScanner{
		browser:   b,
		store:     st,
		processor: proc,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run scans the feed until the context is cancelled. Any error it returns
// is fatal for the whole session: the supervisor closes the browser and
// restarts the worker.
func (f *FeedScanner) Run(ctx context.Context) error {
	page, err := f.browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open feed page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, feedURL, feedNavTimeout); err != nil {
		return fmt.Errorf("navigate feed: %w", err)
	}
	if err := page.WaitVisible(ctx, selPostCard, feedWaitTimeout); err != nil {
		return fmt.Errorf("feed never rendered: %w", err)
	}
	f.selectFollowingTab(ctx, page)

	logrus.Info("Feed scanner started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.scanCycle(ctx, page); err != nil {
			return err
		}
		if err := sleepJitter(ctx, f.rng, cycleDelayMin, cycleDelayMax); err != nil {
			return err
		}
	}
}

// selectFollowingTab switches to the reverse-chronological view when the
// tab is discoverable, silently keeping the algorithmic default when not.
func (f *FeedScanner) selectFollowingTab(ctx context.Context, page browser.Page) {
	present, err := page.Exists(ctx, selFollowingTab)
	if err != nil || !present {
		logrus.Debug("Following tab not found, staying on default view")
		return
	}
	if err := page.Click(ctx, selFollowingTab, 10*time.Second); err != nil {
		logrus.Debugf("Could not select Following tab: %v", err)
	}
}

func (f *FeedScanner) scanCycle(ctx context.Context, page browser.Page) error {
	// Full stored-ID fetch each cycle. O(total posts); fine at current
	// corpus sizes, a known scaling risk at large volumes.
	known, err := f.store.ListRawPostIDs(ctx)
	if err != nil {
		return fmt.Errorf("load stored post ids: %w", err)
	}

	scrolls := 3 + f.rng.Intn(3)
	for i := 0; i < scrolls; i++ {
		if err := page.ScrollBy(ctx, 600+f.rng.Intn(600)); err != nil {
			logrus.Debugf("Feed scroll failed: %v", err)
			break
		}
		if err := sleepJitter(ctx, f.rng, scrollDelayMin, scrollDelayMax); err != nil {
			return err
		}
	}

	cards, err := extractCards(ctx, page, types.SourceFeed)
	if err != nil {
		// Extraction hiccups are transient; the next cycle retries.
		logrus.WithError(err).Warn("Feed extraction failed this cycle")
		return nil
	}

	fresh := 0
	for _, card := range cards {
		if _, seen := known[card.PostID]; seen {
			continue
		}
		if !card.Valid() {
			continue
		}
		f.processor.Process(ctx, card)
		fresh++
	}
	if fresh > 0 {
		logrus.Infof("Feed cycle forwarded %d new posts", fresh)
	}
	return nil
}
