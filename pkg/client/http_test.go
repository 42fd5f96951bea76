package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

func TestClientAccountLifecycle(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")

		switch r.Method + " " + r.URL.Path {
		case "POST /accounts":
			var a types.TrackedAccount
			require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(a)
		case "POST /accounts/bulk":
			json.NewEncoder(w).Encode(map[string]int{"inserted": 2, "total": 3})
		case "GET /accounts":
			json.NewEncoder(w).Encode([]types.TrackedAccount{{Handle: "alice"}, {Handle: "bob"}})
		case "GET /accounts/alice":
			json.NewEncoder(w).Encode(types.TrackedAccount{Handle: "alice"})
		case "DELETE /accounts/alice":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, APIKey("k"))
	require.NoError(t, err)
	ctx := context.Background()

	created, err := c.CreateAccount(ctx, types.TrackedAccount{Handle: "alice", ProfileURL: "https://x.com/alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Handle)
	assert.Equal(t, "Bearer k", gotAuth)

	inserted, err := c.BulkCreateAccounts(ctx, []types.TrackedAccount{{Handle: "a"}, {Handle: "b"}, {Handle: "c"}})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	got, err := c.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Handle)

	assert.NoError(t, c.DeleteAccount(ctx, "alice"))
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "account already tracked"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.CreateAccount(context.Background(), types.TrackedAccount{Handle: "alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already tracked")
}
