// Package pipeline implements the idempotent per-post processing chain:
// persist-raw, rate-limited classification, best-effort market
// enrichment, category routing, and final persistence. One pipeline
// instance is shared by both scanners so the classification rate gate is
// global to the process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/classifier"
	"github.com/itteamcrypto-ai/x-scraper/internal/notify"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

// Enricher looks up market data for one contract address. A nil result
// with nil error means "no data known".
type Enricher interface {
	Lookup(ctx context.Context, address string) (*types.EnrichedContract, error)
}

// Config tunes the pipeline.
type Config struct {
	// ClassifyInterval is the minimum wall-clock spacing between any two
	// classification calls, process-wide. External quota, not a tunable
	// performance knob.
	ClassifyInterval time.Duration
	// ClassifyTimeout bounds a primary-path classification call.
	ClassifyTimeout time.Duration
	// RecoveryTimeout bounds a recovery-sweep classification call.
	RecoveryTimeout time.Duration
	// RecoveryBatch bounds how many stuck posts one sweep retries.
	RecoveryBatch int
	// OverloadRetries is the attempt budget for provider overload.
	OverloadRetries uint64
	// OverloadInitialDelay seeds the doubling backoff.
	OverloadInitialDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.ClassifyInterval == 0 {
		c.ClassifyInterval = 6 * time.Second
	}
	if c.ClassifyTimeout == 0 {
		c.ClassifyTimeout = 20 * time.Second
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 15 * time.Second
	}
	if c.RecoveryBatch == 0 {
		c.RecoveryBatch = 5
	}
	if c.OverloadRetries == 0 {
		c.OverloadRetries = 3
	}
	if c.OverloadInitialDelay == 0 {
		c.OverloadInitialDelay = 2 * time.Second
	}
}

// Pipeline is the single serialization point for classification and
// persistence.
type Pipeline struct {
	store      store.PostStore
	classifier classifier.Classifier
	enricher   Enricher
	notifier   notify.Notifier
	// classifyMu keeps at most one classification call in flight across
	// the whole process; the limiter only spaces call starts and would
	// let calls overlap whenever one outlasts the interval.
	classifyMu sync.Mutex
	gate       *rate.Limiter
	cfg        Config
}

// New builds a pipeline.
func New(st store.PostStore, cl classifier.Classifier, en Enricher, no notify.Notifier, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		store:      st,
		classifier: cl,
		enricher:   en,
		notifier:   no,
		gate:       rate.NewLimiter(rate.Every(cfg.ClassifyInterval), 1),
		cfg:        cfg,
	}
}

// Process runs one candidate through the full pipeline. It never returns
// an error: any failure is logged and contained so one bad post cannot
// abort a scan cycle. Calling it twice with the same post identifier is a
// no-op the second time.
func (p *Pipeline) Process(ctx context.Context, card types.PostCard) {
	log := logrus.WithField("post_id", card.PostID)

	exists, err := p.store.HasRawPost(ctx, card.PostID)
	if err != nil {
		log.WithError(err).Error("Idempotency check failed")
		return
	}
	if exists {
		log.Debug("Post already captured, skipping")
		return
	}

	raw := &types.RawPost{
		PostID:    card.PostID,
		Author:    card.Author,
		Text:      card.Text,
		Timestamp: card.Timestamp,
		MediaURL:  card.MediaURL,
		Status:    types.PostStatusUnprocessed,
		Source:    card.Source,
	}
	// Insert before classifying: a crash past this point leaves an
	// unprocessed record the recovery sweep can pick up.
	if err := p.store.InsertRawPost(ctx, raw); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Debug("Lost insert race, post already captured")
			return
		}
		log.WithError(err).Error("Raw persistence failed")
		return
	}

	p.classifyAndFinish(ctx, raw, p.cfg.ClassifyTimeout)
}

// classifyAndFinish runs stages 3-5 for a persisted raw post.
func (p *Pipeline) classifyAndFinish(ctx context.Context, raw *types.RawPost, timeout time.Duration) {
	log := logrus.WithField("post_id", raw.PostID)

	p.classifyMu.Lock()
	verdict := p.classifyWithRetry(ctx, raw, timeout)
	p.classifyMu.Unlock()

	if ctx.Err() != nil {
		log.WithError(ctx.Err()).Warn("Classification aborted")
		return
	}

	switch {
	case verdict.Failed():
		// Leave/return the post to unprocessed so the recovery sweep
		// retries it later.
		if err := p.store.SetRawPostStatus(ctx, raw.PostID, types.PostStatusUnprocessed); err != nil {
			log.WithError(err).Error("Failed marking post unprocessed")
		}
		log.Warn("Classification failed, post left for recovery sweep")

	case verdict.Discarded():
		if err := p.store.SetRawPostStatus(ctx, raw.PostID, types.PostStatusDiscarded); err != nil {
			log.WithError(err).Error("Failed marking post discarded")
		}
		log.Debug("Post not relevant, discarded")

	default:
		p.finish(ctx, raw, verdict)
	}
}

// classifyWithRetry wraps the classifier call in a hard timeout and an
// exponential-backoff retry that applies only to the provider's overload
// signal. Every failure mode collapses into the error sentinel category.
func (p *Pipeline) classifyWithRetry(ctx context.Context, raw *types.RawPost, timeout time.Duration) classifier.Classification {
	log := logrus.WithField("post_id", raw.PostID)

	var verdict classifier.Classification
	operation := func() error {
		// Re-wait per attempt so retried calls keep the spacing contract.
		if err := p.gate.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		verdict, err = p.classifier.Classify(callCtx, raw.Text, raw.MediaURL)
		if errors.Is(err, classifier.ErrOverloaded) {
			log.Warn("Classifier overloaded, backing off")
			return err
		}
		if err != nil {
			// Not retryable: timeouts and plain failures become the
			// sentinel immediately.
			return backoff.Permanent(err)
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = p.cfg.OverloadInitialDelay
	strategy.Multiplier = 2
	strategy.RandomizationFactor = 0

	err := backoff.Retry(operation, backoff.WithMaxRetries(strategy, p.cfg.OverloadRetries-1))
	if err != nil {
		log.WithError(err).Error("Classification failed")
		return classifier.Classification{Category: classifier.CategoryError}
	}
	return verdict
}

// finish enriches, routes, and persists a relevant verdict.
func (p *Pipeline) finish(ctx context.Context, raw *types.RawPost, verdict classifier.Classification) {
	log := logrus.WithField("post_id", raw.PostID)

	var enriched []types.EnrichedContract
	for _, ref := range verdict.Contracts {
		data, err := p.enricher.Lookup(ctx, ref.Address)
		if err != nil {
			log.WithError(err).Debugf("Market lookup failed for %s", ref.Address)
			continue
		}
		if data == nil {
			continue
		}
		if data.Chain == "" {
			data.Chain = ref.Blockchain
		}
		enriched = append(enriched, *data)
	}

	classified := &types.ClassifiedPost{
		PostID:    raw.PostID,
		Author:    raw.Author,
		Text:      raw.Text,
		Timestamp: raw.Timestamp,
		Category:  verdict.Category,
		Tags:      verdict.Tags,
		Contracts: verdict.Contracts,
		Enriched:  enriched,
		MediaURL:  raw.MediaURL,
		Source:    raw.Source,
	}

	channel := ChannelFor(verdict.Category)
	if err := p.notifier.Post(ctx, channel, buildMessage(classified)); err != nil {
		log.WithError(err).Errorf("Notification to %s failed", channel)
	}

	if err := p.store.InsertClassifiedPost(ctx, classified); err != nil && !errors.Is(err, store.ErrDuplicate) {
		log.WithError(err).Error("Classified persistence failed")
		return
	}
	if err := p.store.SetRawPostStatus(ctx, raw.PostID, types.PostStatusProcessed); err != nil {
		log.WithError(err).Error("Failed marking post processed")
		return
	}
	log.Infof("Post processed: %s via %s", verdict.Category, channel)
}

// RecoverUnprocessed retries classification for a bounded batch of posts
// left unprocessed by earlier failures. Runs after each deep-scan cycle;
// the backlog drains across many cycles, not in one.
func (p *Pipeline) RecoverUnprocessed(ctx context.Context) {
	posts, err := p.store.ListUnprocessed(ctx, p.cfg.RecoveryBatch)
	if err != nil {
		logrus.WithError(err).Error("Recovery sweep fetch failed")
		return
	}
	if len(posts) == 0 {
		return
	}

	logrus.Infof("Recovery sweep retrying %d posts", len(posts))
	for i := range posts {
		if ctx.Err() != nil {
			return
		}
		p.classifyAndFinish(ctx, &posts[i], p.cfg.RecoveryTimeout)
	}
}

func buildMessage(post *types.ClassifiedPost) notify.Message {
	msg := notify.Message{
		Title: fmt.Sprintf("%s - @%s", post.Category, post.Author),
		Body:  post.Text,
		URL:   postURL(post.PostID),
		Fields: []notify.Field{
			{Name: "Source", Value: string(post.Source)},
		},
	}
	if len(post.Tags) > 0 {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Tags", Value: strings.Join(post.Tags, ", ")})
	}
	for _, ec := range post.Enriched {
		value := fmt.Sprintf("$%s | price $%.8f | liq $%.0f | vol24h $%.0f | FDV $%.0f",
			ec.Symbol, ec.PriceUSD, ec.LiquidityUSD, ec.Volume24hUSD, ec.FDVUSD)
		msg.Fields = append(msg.Fields, notify.Field{Name: ec.Address, Value: value})
	}
	return msg
}

func postURL(postID string) string {
	if strings.HasPrefix(postID, "/") {
		return "https://x.com" + postID
	}
	return "https://x.com/i/status/" + postID
}
