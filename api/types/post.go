package types

import (
	"strings"
	"time"
)

// PostStatus tracks a raw post through the pipeline. Transitions only move
// forward: unprocessed posts become processed or discarded, never the
// reverse. Posts stuck in unprocessed are retried by the recovery sweep.
type PostStatus string

const (
	PostStatusUnprocessed PostStatus = "unprocessed"
	PostStatusProcessed   PostStatus = "processed"
	PostStatusDiscarded   PostStatus = "discarded"
)

// CaptureSource records which scan surface produced a post.
type CaptureSource string

const (
	SourceProfile CaptureSource = "profile"
	SourceMention CaptureSource = "mention"
	SourceFeed    CaptureSource = "feed"
)

// PostCard is a candidate post extracted from the DOM, before any
// persistence or classification.
type PostCard struct {
	PostID    string        `json:"post_id"`
	Author    string        `json:"author"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	MediaURL  string        `json:"media_url,omitempty"`
	Pinned    bool          `json:"pinned,omitempty"`
	Source    CaptureSource `json:"source"`
}

// Valid reports whether the card carries the fields the pipeline requires:
// an identifier, an author, a timestamp, and at least one of text or media.
func (c PostCard) Valid() bool {
	if strings.TrimSpace(c.PostID) == "" || strings.TrimSpace(c.Author) == "" {
		return false
	}
	if c.Timestamp.IsZero() {
		return false
	}
	return strings.TrimSpace(c.Text) != "" || strings.TrimSpace(c.MediaURL) != ""
}

// RawPost is the first-stage persisted capture of a scraped post. Exactly
// one record exists per PostID; only Status advances after insertion.
type RawPost struct {
	PostID    string        `json:"post_id" bson:"post_id"`
	Author    string        `json:"author" bson:"author"`
	Text      string        `json:"text" bson:"text"`
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
	MediaURL  string        `json:"media_url,omitempty" bson:"media_url,omitempty"`
	Status    PostStatus    `json:"status" bson:"status"`
	Source    CaptureSource `json:"source" bson:"source"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// ContractRef is a contract address the classifier detected in a post.
type ContractRef struct {
	Address    string `json:"address" bson:"address"`
	Blockchain string `json:"blockchain,omitempty" bson:"blockchain,omitempty"`
}

// EnrichedContract carries best-effort market data for a detected contract.
// Every field except Address may be zero when the lookup fails or returns
// no pair.
type EnrichedContract struct {
	Address      string  `json:"address" bson:"address"`
	Symbol       string  `json:"symbol,omitempty" bson:"symbol,omitempty"`
	PriceUSD     float64 `json:"price_usd,omitempty" bson:"price_usd,omitempty"`
	FDVUSD       float64 `json:"fdv_usd,omitempty" bson:"fdv_usd,omitempty"`
	LiquidityUSD float64 `json:"liquidity_usd,omitempty" bson:"liquidity_usd,omitempty"`
	Volume24hUSD float64 `json:"volume_24h_usd,omitempty" bson:"volume_24h_usd,omitempty"`
	Chain        string  `json:"chain,omitempty" bson:"chain,omitempty"`
}

// ClassifiedPost is the second-stage record produced when classification
// yields a relevant category. Immutable after insertion; one per PostID.
type ClassifiedPost struct {
	PostID    string             `json:"post_id" bson:"post_id"`
	Author    string             `json:"author" bson:"author"`
	Text      string             `json:"text" bson:"text"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	Category  string             `json:"category" bson:"category"`
	Tags      []string           `json:"tags,omitempty" bson:"tags,omitempty"`
	Contracts []ContractRef      `json:"contracts,omitempty" bson:"contracts,omitempty"`
	Enriched  []EnrichedContract `json:"enriched,omitempty" bson:"enriched,omitempty"`
	MediaURL  string             `json:"media_url,omitempty" bson:"media_url,omitempty"`
	Source    CaptureSource      `json:"source" bson:"source"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
