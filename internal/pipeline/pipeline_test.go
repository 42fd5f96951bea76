package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/classifier"
	"github.com/itteamcrypto-ai/x-scraper/internal/notify"
	. "github.com/itteamcrypto-ai/x-scraper/internal/pipeline"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

type fakeClassifier struct {
	mu       sync.Mutex
	classify func(text string) (classifier.Classification, error)
	// classifyCtx takes precedence when set, for cases that need the
	// call context (timeouts, blocking).
	classifyCtx func(ctx context.Context, text string) (classifier.Classification, error)
	calls       []time.Time
}

func (f *fakeClassifier) Classify(ctx context.Context, text, _ string) (classifier.Classification, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.mu.Unlock()
	if f.classifyCtx != nil {
		return f.classifyCtx(ctx, text)
	}
	return f.classify(text)
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClassifier) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

type fakeEnricher struct {
	data map[string]*types.EnrichedContract
	err  error
}

func (f *fakeEnricher) Lookup(_ context.Context, address string) (*types.EnrichedContract, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[address], nil
}

type sentMessage struct {
	Channel notify.Channel
	Message notify.Message
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeNotifier) Post(_ context.Context, ch notify.Channel, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Channel: ch, Message: msg})
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func relevant(category string, contracts ...types.ContractRef) func(string) (classifier.Classification, error) {
	return func(string) (classifier.Classification, error) {
		return classifier.Classification{
			Category:  category,
			Tags:      []string{"memecoin"},
			Contracts: contracts,
		}, nil
	}
}

func card(id string) types.PostCard {
	return types.PostCard{
		PostID:    id,
		Author:    "cryptodev",
		Text:      "new token dropping",
		Timestamp: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		Source:    types.SourceProfile,
	}
}

var _ = Describe("Pipeline", func() {
	var (
		ctx context.Context
		mem *store.Memory
		cl  *fakeClassifier
		en  *fakeEnricher
		no  *fakeNotifier
		cfg Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		cl = &fakeClassifier{classify: relevant("launch alert")}
		en = &fakeEnricher{data: map[string]*types.EnrichedContract{}}
		no = &fakeNotifier{}
		cfg = Config{
			ClassifyInterval:     time.Millisecond,
			ClassifyTimeout:      time.Second,
			RecoveryTimeout:      time.Second,
			RecoveryBatch:        5,
			OverloadRetries:      3,
			OverloadInitialDelay: time.Millisecond,
		}
	})

	newPipeline := func() *Pipeline {
		return New(mem, cl, en, no, cfg)
	}

	It("persists, classifies, routes, and marks a relevant post processed", func() {
		newPipeline().Process(ctx, card("1001"))

		raw, ok := mem.GetRawPost("1001")
		Expect(ok).To(BeTrue())
		Expect(raw.Status).To(Equal(types.PostStatusProcessed))

		classified, ok := mem.GetClassifiedPost("1001")
		Expect(ok).To(BeTrue())
		Expect(classified.Category).To(Equal("launch alert"))
		Expect(classified.Tags).To(ContainElement("memecoin"))
		Expect(classified.Source).To(Equal(types.SourceProfile))

		sent := no.messages()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Channel).To(Equal(notify.ChannelAlerts))
		Expect(sent[0].Message.URL).To(Equal("https://x.com/i/status/1001"))
	})

	It("routes non-alert categories to the general channel", func() {
		cl.classify = relevant("ecosystem news")
		newPipeline().Process(ctx, card("1002"))

		sent := no.messages()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Channel).To(Equal(notify.ChannelGeneral))
	})

	It("processes the same post only once", func() {
		p := newPipeline()
		p.Process(ctx, card("1003"))
		p.Process(ctx, card("1003"))

		Expect(cl.callCount()).To(Equal(1))
		Expect(no.messages()).To(HaveLen(1))
	})

	It("discards not-relevant posts without notifying", func() {
		cl.classify = func(string) (classifier.Classification, error) {
			return classifier.Classification{Category: classifier.CategoryNotRelevant}, nil
		}
		newPipeline().Process(ctx, card("1004"))

		raw, ok := mem.GetRawPost("1004")
		Expect(ok).To(BeTrue())
		Expect(raw.Status).To(Equal(types.PostStatusDiscarded))

		_, ok = mem.GetClassifiedPost("1004")
		Expect(ok).To(BeFalse())
		Expect(no.messages()).To(BeEmpty())
	})

	It("leaves a post unprocessed when classification fails outright", func() {
		cl.classify = func(string) (classifier.Classification, error) {
			return classifier.Classification{}, errors.New("upstream 500")
		}
		newPipeline().Process(ctx, card("1005"))

		raw, ok := mem.GetRawPost("1005")
		Expect(ok).To(BeTrue())
		Expect(raw.Status).To(Equal(types.PostStatusUnprocessed))

		// Plain failures are not retried.
		Expect(cl.callCount()).To(Equal(1))
		Expect(no.messages()).To(BeEmpty())
	})

	It("retries only the overload signal, then succeeds", func() {
		attempts := 0
		cl.classify = func(string) (classifier.Classification, error) {
			attempts++
			if attempts < 3 {
				return classifier.Classification{}, classifier.ErrOverloaded
			}
			return classifier.Classification{Category: "listing"}, nil
		}
		newPipeline().Process(ctx, card("1006"))

		Expect(attempts).To(Equal(3))
		raw, _ := mem.GetRawPost("1006")
		Expect(raw.Status).To(Equal(types.PostStatusProcessed))
	})

	It("gives up after the overload retry budget", func() {
		cl.classify = func(string) (classifier.Classification, error) {
			return classifier.Classification{}, classifier.ErrOverloaded
		}
		newPipeline().Process(ctx, card("1007"))

		Expect(cl.callCount()).To(Equal(3))
		raw, _ := mem.GetRawPost("1007")
		Expect(raw.Status).To(Equal(types.PostStatusUnprocessed))
	})

	It("keeps at most one classification call in flight across concurrent producers", func() {
		var inFlight, peak int64
		cl.classifyCtx = func(_ context.Context, _ string) (classifier.Classification, error) {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			// Outlast the interval so overlap would show if calls were
			// only spaced at the start.
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return classifier.Classification{Category: "signal"}, nil
		}
		cfg.ClassifyInterval = 5 * time.Millisecond
		p := newPipeline()

		var wg sync.WaitGroup
		for _, id := range []string{"5001", "5002", "5003", "5004"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				p.Process(ctx, card(id))
			}(id)
		}
		wg.Wait()

		Expect(atomic.LoadInt64(&peak)).To(Equal(int64(1)))
		Expect(cl.callCount()).To(Equal(4))
		for _, id := range []string{"5001", "5002", "5003", "5004"} {
			raw, ok := mem.GetRawPost(id)
			Expect(ok).To(BeTrue())
			Expect(raw.Status).To(Equal(types.PostStatusProcessed))
		}
	})

	It("leaves a timed-out classification unprocessed until the recovery sweep", func() {
		cfg.ClassifyTimeout = 20 * time.Millisecond
		slow := true
		cl.classifyCtx = func(callCtx context.Context, _ string) (classifier.Classification, error) {
			if slow {
				<-callCtx.Done()
				return classifier.Classification{}, callCtx.Err()
			}
			return classifier.Classification{Category: "signal"}, nil
		}
		p := newPipeline()

		p.Process(ctx, card("6001"))

		raw, ok := mem.GetRawPost("6001")
		Expect(ok).To(BeTrue())
		Expect(raw.Status).To(Equal(types.PostStatusUnprocessed))
		Expect(no.messages()).To(BeEmpty())

		// Timeouts are not retried.
		Expect(cl.callCount()).To(Equal(1))

		slow = false
		p.RecoverUnprocessed(ctx)

		raw, _ = mem.GetRawPost("6001")
		Expect(raw.Status).To(Equal(types.PostStatusProcessed))
		Expect(no.messages()).To(HaveLen(1))
	})

	It("enforces the minimum spacing between classification calls", func() {
		cfg.ClassifyInterval = 80 * time.Millisecond
		p := newPipeline()

		p.Process(ctx, card("1008"))
		p.Process(ctx, card("1009"))

		times := cl.callTimes()
		Expect(times).To(HaveLen(2))
		Expect(times[1].Sub(times[0])).To(BeNumerically(">=", 70*time.Millisecond))
	})

	It("enriches detected contracts and falls back to the detected chain", func() {
		cl.classify = relevant("contract alert",
			types.ContractRef{Address: "0xabc", Blockchain: "base"},
			types.ContractRef{Address: "0xdead"},
		)
		en.data["0xabc"] = &types.EnrichedContract{
			Address:      "0xabc",
			Symbol:       "TKN",
			PriceUSD:     0.0042,
			LiquidityUSD: 150000,
		}

		newPipeline().Process(ctx, card("1010"))

		classified, ok := mem.GetClassifiedPost("1010")
		Expect(ok).To(BeTrue())
		Expect(classified.Enriched).To(HaveLen(1))
		Expect(classified.Enriched[0].Symbol).To(Equal("TKN"))
		Expect(classified.Enriched[0].Chain).To(Equal("base"))

		sent := no.messages()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Channel).To(Equal(notify.ChannelAlerts))

		var fieldNames []string
		for _, f := range sent[0].Message.Fields {
			fieldNames = append(fieldNames, f.Name)
		}
		Expect(fieldNames).To(ContainElement("0xabc"))
	})

	It("still persists the post when enrichment errors", func() {
		cl.classify = relevant("contract alert", types.ContractRef{Address: "0xabc"})
		en.err = errors.New("dexscreener unreachable")

		newPipeline().Process(ctx, card("1011"))

		classified, ok := mem.GetClassifiedPost("1011")
		Expect(ok).To(BeTrue())
		Expect(classified.Enriched).To(BeEmpty())
		raw, _ := mem.GetRawPost("1011")
		Expect(raw.Status).To(Equal(types.PostStatusProcessed))
	})

	Describe("recovery sweep", func() {
		It("retries stuck posts and completes them", func() {
			failing := true
			cl.classify = func(string) (classifier.Classification, error) {
				if failing {
					return classifier.Classification{}, errors.New("transient")
				}
				return classifier.Classification{Category: "signal"}, nil
			}
			p := newPipeline()

			p.Process(ctx, card("2001"))
			raw, _ := mem.GetRawPost("2001")
			Expect(raw.Status).To(Equal(types.PostStatusUnprocessed))

			failing = false
			p.RecoverUnprocessed(ctx)

			raw, _ = mem.GetRawPost("2001")
			Expect(raw.Status).To(Equal(types.PostStatusProcessed))
			Expect(no.messages()).To(HaveLen(1))
			Expect(no.messages()[0].Channel).To(Equal(notify.ChannelAlerts))
		})

		It("bounds one sweep to the batch size", func() {
			cfg.RecoveryBatch = 2
			cl.classify = relevant("signal")
			p := newPipeline()

			for _, id := range []string{"3001", "3002", "3003"} {
				Expect(mem.InsertRawPost(ctx, &types.RawPost{
					PostID: id, Author: "a", Text: "t",
					Status: types.PostStatusUnprocessed,
				})).To(Succeed())
			}

			p.RecoverUnprocessed(ctx)
			Expect(cl.callCount()).To(Equal(2))

			p.RecoverUnprocessed(ctx)
			Expect(cl.callCount()).To(Equal(3))
		})

		It("does nothing with an empty backlog", func() {
			p := newPipeline()
			p.RecoverUnprocessed(ctx)
			Expect(cl.callCount()).To(BeZero())
		})
	})
})

var _ = Describe("ChannelFor", func() {
	It("routes alert categories regardless of separator and case", func() {
		for _, category := range []string{"Contract Alert", "contract-alert", "CONTRACT_ALERT", "launch alert", "PnL Sharing"} {
			Expect(ChannelFor(category)).To(Equal(notify.ChannelAlerts), category)
		}
	})

	It("routes everything else to general", func() {
		for _, category := range []string{"ecosystem news", "partnership", "meme", ""} {
			Expect(ChannelFor(category)).To(Equal(notify.ChannelGeneral), category)
		}
	})
})
