package scanner

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
)

const (
	deepNavTimeout  = 45 * time.Second
	deepWaitTimeout = 20 * time.Second

	// scroll-and-poll bounds: stop when enough cards rendered or two
	// consecutive scrolls load nothing new.
	targetCardCount   = 20
	maxScrollAttempts = 8
	stagnantLimit     = 2

	// sampleLimit caps how many recent posts each sub-scan forwards.
	sampleLimit = 5
)

// Sweeper runs the failure-recovery pass after a deep-scan cycle.
type Sweeper interface {
	RecoverUnprocessed(ctx context.Context)
}

// DeepScanner samples one tracked account at a time: its own recent
// posts, then recent mentions of it.
type DeepScanner struct {
	browser   browser.Browser
	processor Processor
	sweeper   Sweeper
	rng       *rand.Rand
}

// NewDeepScanner builds a deep scanner over the shared browser.
func NewDeepScanner(b browser.Browser, proc Processor, sweeper Sweeper) *DeepScanner {
	return &DeepScanner{
		browser:   b,
		processor: proc,
		sweeper:   sweeper,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ScanAccount runs both sub-scans for the account on one dedicated page,
// then triggers the recovery sweep. Sub-scan failures are soft: a failed
// surface contributes zero posts and the cycle continues.
func (d *DeepScanner) ScanAccount(ctx context.Context, account types.TrackedAccount) error {
	log := logrus.WithField("handle", account.Handle)

	// The sweep runs after every deep-scan cycle, including ones that
	// never got a page.
	defer d.sweeper.RecoverUnprocessed(ctx)

	page, err := d.browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open deep-scan page: %w", err)
	}
	defer page.Close()

	profileCards, err := d.collect(ctx, page, account.ProfileURL, types.SourceProfile)
	if err != nil {
		log.WithError(err).Warn("Profile scan yielded no posts")
	}
	d.forward(ctx, profileCards, true)

	searchURL := "https://x.com/search?f=live&q=" + url.QueryEscape("@"+account.Handle)
	mentionCards, err := d.collect(ctx, page, searchURL, types.SourceMention)
	if err != nil {
		log.WithError(err).Warn("Mention scan yielded no posts")
	}
	// Search results cannot be pinned; no exclusion on this pass.
	d.forward(ctx, mentionCards, false)

	log.Debugf("Deep scan done: %d profile cards, %d mention cards", len(profileCards), len(mentionCards))
	return nil
}

// collect navigates to a surface and scroll-polls until enough cards are
// rendered, then extracts them. Failures come back as ErrNoCards-wrapped
// typed errors, never propagated exceptions.
func (d *DeepScanner) collect(ctx context.Context, page browser.Page, target string, source types.CaptureSource) ([]types.PostCard, error) {
	if err := page.Navigate(ctx, target, deepNavTimeout); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", ErrNoCards, target, err)
	}
	if err := page.WaitVisible(ctx, selPostCard, deepWaitTimeout); err != nil {
		return nil, fmt.Errorf("%w: cards never rendered on %s", ErrNoCards, target)
	}

	last, stagnant := 0, 0
	for attempt := 0; attempt < maxScrollAttempts; attempt++ {
		n, err := countCards(ctx, page)
		if err != nil {
			break
		}
		if n >= targetCardCount {
			break
		}
		if n == last {
			stagnant++
			if stagnant >= stagnantLimit {
				break
			}
		} else {
			stagnant = 0
			last = n
		}
		if err := page.ScrollBy(ctx, 700+d.rng.Intn(500)); err != nil {
			break
		}
		if err := sleepJitter(ctx, d.rng, scrollDelayMin, scrollDelayMax); err != nil {
			return nil, err
		}
	}

	cards, err := extractCards(ctx, page, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCards, err)
	}
	return cards, nil
}

// forward pushes the newest valid cards into the pipeline, capped at the
// sample limit. Deduplication is the pipeline's idempotency gate.
func (d *DeepScanner) forward(ctx context.Context, cards []types.PostCard, excludePinned bool) {
	forwarded := 0
	for _, card := range cards {
		if forwarded >= sampleLimit {
			break
		}
		if excludePinned && card.Pinned {
			continue
		}
		if !card.Valid() {
			continue
		}
		d.processor.Process(ctx, card)
		forwarded++
	}
}

func sleepJitter(ctx context.Context, rng *rand.Rand, min, max time.Duration) error {
	d := min + time.Duration(rng.Int63n(int64(max-min)))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
