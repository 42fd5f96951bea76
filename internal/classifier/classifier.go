// Package classifier consumes the external AI classification service as a
// black box: text (and optionally media) in, category/tags/contracts out.
package classifier

import (
	"context"
	"errors"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

// Categories with pipeline-level meaning. Everything else is routed by
// the category router.
const (
	// CategoryError is the sentinel for a failed classification; the post
	// stays unprocessed and is retried by the recovery sweep.
	CategoryError = "error"
	// CategoryNotRelevant marks a post the pipeline discards.
	CategoryNotRelevant = "not-relevant"
)

// ErrOverloaded signals the provider's overload/throttle response. It is
// the only classifier error the pipeline retries.
var ErrOverloaded = errors.New("classifier overloaded")

// Classification is the classifier's verdict for one post.
type Classification struct {
	Category  string              `json:"category"`
	Tags      []string            `json:"tags,omitempty"`
	Contracts []types.ContractRef `json:"contracts,omitempty"`
}

// Discarded reports whether the verdict rules the post out.
func (c Classification) Discarded() bool {
	return c.Category == CategoryNotRelevant
}

// Failed reports whether the verdict is the error sentinel.
func (c Classification) Failed() bool {
	return c.Category == CategoryError || c.Category == ""
}

// Classifier is the external AI classification boundary.
type Classifier interface {
	Classify(ctx context.Context, text, mediaURL string) (Classification, error)
}
