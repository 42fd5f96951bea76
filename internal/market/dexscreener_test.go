package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPicksDeepestLiquidityPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/0xabc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs": [
			{"chainId": "ethereum", "baseToken": {"symbol": "SHALLOW"}, "priceUsd": "0.01", "liquidity": {"usd": 5000}},
			{"chainId": "base", "baseToken": {"symbol": "DEEP"}, "priceUsd": "0.0123", "fdv": 1200000, "liquidity": {"usd": 250000}, "volume": {"h24": 90000}}
		]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	ec, err := c.Lookup(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, ec)

	assert.Equal(t, "0xabc", ec.Address)
	assert.Equal(t, "DEEP", ec.Symbol)
	assert.Equal(t, "base", ec.Chain)
	assert.InDelta(t, 0.0123, ec.PriceUSD, 1e-9)
	assert.Equal(t, 1200000.0, ec.FDVUSD)
	assert.Equal(t, 250000.0, ec.LiquidityUSD)
	assert.Equal(t, 90000.0, ec.Volume24hUSD)
}

func TestLookupNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs": null}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	ec, err := c.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, ec)
}

func TestLookupUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	_, err := c.Lookup(context.Background(), "0xabc")
	assert.Error(t, err)
}

func TestLookupUnparseablePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs": [{"chainId": "solana", "baseToken": {"symbol": "X"}, "priceUsd": "", "liquidity": {"usd": 1}}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	ec, err := c.Lookup(context.Background(), "addr")
	require.NoError(t, err)
	require.NotNil(t, ec)
	assert.Zero(t, ec.PriceUSD)
}
