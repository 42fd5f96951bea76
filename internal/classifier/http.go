package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

const systemPrompt = `You classify posts scraped from X/Twitter for a crypto intelligence feed.
Reply with strict JSON only, no prose and no code fences:
{"category": "...", "tags": ["..."], "contracts": [{"address": "...", "blockchain": "..."}]}
Categories: Airdrop, Launch Alert, Presale, Contract Alert, Listing, Price Alert,
Scam Warning, Giveaway, Signal, PnL Sharing, News, Analysis, Community, not-relevant.
Use "not-relevant" for anything without crypto signal value. Extract every contract
address you see (Solana base58 or EVM 0x...) with its blockchain when inferable.`

// HTTPClassifier calls an OpenAI-compatible chat-completions endpoint.
type HTTPClassifier struct {
	client *resty.Client
	url    string
	model  string
}

// NewHTTP builds a classifier against the given endpoint.
func NewHTTP(url, apiKey, model string) *HTTPClassifier {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")
	return &HTTPClassifier{client: client, url: url, model: model}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Classify sends the post text (and media, when present) for
// classification. HTTP 429/503 and provider "overloaded" replies map to
// ErrOverloaded; everything else fails plainly.
func (c *HTTPClassifier) Classify(ctx context.Context, text, mediaURL string) (Classification, error) {
	var userContent any = text
	if mediaURL != "" {
		userContent = []contentPart{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: &imageURL{URL: mediaURL}},
		}
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(c.url)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return Classification{}, ErrOverloaded
	default:
		if out.Error != nil && strings.Contains(strings.ToLower(out.Error.Type+out.Error.Message), "overload") {
			return Classification{}, ErrOverloaded
		}
		return Classification{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(out.Choices) == 0 {
		return Classification{}, fmt.Errorf("classifier returned no choices")
	}
	return parseVerdict(out.Choices[0].Message.Content)
}

// parseVerdict decodes the model's JSON reply, tolerating code fences.
func parseVerdict(content string) (Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var verdict struct {
		Category  string   `json:"category"`
		Tags      []string `json:"tags"`
		Contracts []struct {
			Address    string `json:"address"`
			Blockchain string `json:"blockchain"`
		} `json:"contracts"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		logrus.Debugf("Unparseable classifier reply: %s", content)
		return Classification{}, fmt.Errorf("parse classifier reply: %w", err)
	}
	if verdict.Category == "" {
		return Classification{}, fmt.Errorf("classifier reply missing category")
	}

	cl := Classification{Category: verdict.Category, Tags: verdict.Tags}
	for _, ref := range verdict.Contracts {
		if ref.Address == "" {
			continue
		}
		cl.Contracts = append(cl.Contracts, types.ContractRef{
			Address:    ref.Address,
			Blockchain: ref.Blockchain,
		})
	}
	return cl, nil
}
