// Package market looks up best-effort DEX market data for contract
// addresses via the DexScreener public API.
package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

const defaultBaseURL = "https://api.dexscreener.com"

// Client queries DexScreener token pairs.
type Client struct {
	http *resty.Client
}

// New builds a client against the public API.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL)
}

// NewWithBaseURL builds a client against a custom endpoint (tests).
func NewWithBaseURL(baseURL string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(10 * time.Second)
	return &Client{http: client}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	FDV       float64 `json:"fdv"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

// Lookup returns market data for the pair with the deepest liquidity, or
// (nil, nil) when no pair is known for the address. Callers treat any
// failure as "no data"; a bad lookup never blocks the pipeline.
func (c *Client) Lookup(ctx context.Context, address string) (*types.EnrichedContract, error) {
	var out pairsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/latest/dex/tokens/" + address)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("dexscreener status %d", resp.StatusCode())
	}
	if len(out.Pairs) == 0 {
		logrus.Debugf("No pairs for contract %s", address)
		return nil, nil
	}

	best := out.Pairs[0]
	for _, p := range out.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	price, err := strconv.ParseFloat(best.PriceUSD, 64)
	if err != nil {
		price = 0
	}

	return &types.EnrichedContract{
		Address:      address,
		Symbol:       best.BaseToken.Symbol,
		PriceUSD:     price,
		FDVUSD:       best.FDV,
		LiquidityUSD: best.Liquidity.USD,
		Volume24hUSD: best.Volume.H24,
		Chain:        best.ChainID,
	}, nil
}
