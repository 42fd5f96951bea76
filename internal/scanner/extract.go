package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/browser"
)

// ErrNoCards is the typed soft-failure for an extraction pass that found
// no post cards (navigation failure, selector timeout, empty surface).
// Callers treat it as "zero posts this cycle", never as fatal.
var ErrNoCards = errors.New("no post cards extracted")

const selPostCard = `article[data-testid="tweet"]`

// extractCardsJS pulls the visible post cards out of the DOM. Selectors
// are site-specific and brittle; everything else in the scanners is
// insulated from them through the PostCard shape this returns.
const extractCardsJS = `
(() => {
  const cards = [];
  for (const article of document.querySelectorAll('article[data-testid="tweet"]')) {
    const link = article.querySelector('a[href*="/status/"]');
    const timeEl = article.querySelector('time');
    const textEl = article.querySelector('div[data-testid="tweetText"]');
    const mediaEl = article.querySelector('img[src*="pbs.twimg.com/media"], video source');
    const pinned = article.querySelector('div[data-testid="socialContext"]') !== null;
    const href = link ? link.getAttribute('href') : '';
    const author = href.split('/')[1] || '';
    cards.push({
      post_id: href,
      author: author,
      text: textEl ? textEl.innerText : '',
      timestamp: timeEl ? timeEl.getAttribute('datetime') : '',
      media_url: mediaEl ? (mediaEl.getAttribute('src') || '') : '',
      pinned: pinned,
    });
  }
  return JSON.stringify(cards);
})()
`

type rawCard struct {
	PostID    string `json:"post_id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	MediaURL  string `json:"media_url"`
	Pinned    bool   `json:"pinned"`
}

// extractCards evaluates the extraction script on the page and converts
// the result into PostCards tagged with the given source.
func extractCards(ctx context.Context, page browser.Page, source types.CaptureSource) ([]types.PostCard, error) {
	var payload string
	if err := page.Evaluate(ctx, extractCardsJS, &payload); err != nil {
		return nil, fmt.Errorf("extract cards: %w", err)
	}

	var raw []rawCard
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}

	cards := make([]types.PostCard, 0, len(raw))
	for _, r := range raw {
		ts, _ := time.Parse(time.RFC3339, r.Timestamp)
		cards = append(cards, types.PostCard{
			PostID:    r.PostID,
			Author:    r.Author,
			Text:      r.Text,
			Timestamp: ts,
			MediaURL:  r.MediaURL,
			Pinned:    r.Pinned,
			Source:    source,
		})
	}
	return cards, nil
}

// countCards reports how many post cards are currently in the DOM.
func countCards(ctx context.Context, page browser.Page) (int, error) {
	var n int
	expr := fmt.Sprintf("document.querySelectorAll(%q).length", selPostCard)
	if err := page.Evaluate(ctx, expr, &n); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}
