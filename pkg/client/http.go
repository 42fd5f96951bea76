package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

// Client talks to the worker's admin API.
type Client struct {
	baseURL string
	http    *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

type bulkResponse struct {
	Inserted int `json:"inserted"`
	Total    int `json:"total"`
}

// NewClient creates an admin API client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(o.Timeout)
	if o.APIKey != "" {
		r.SetHeader("Authorization", "Bearer "+o.APIKey)
	}

	return &Client{baseURL: baseURL, http: r}, nil
}

// CreateAccount registers a new tracked account.
func (c *Client) CreateAccount(ctx context.Context, account types.TrackedAccount) (*types.TrackedAccount, error) {
	var (
		created types.TrackedAccount
		apiErr  apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(account).
		SetResult(&created).
		SetError(&apiErr).
		Post("/accounts")
	if err != nil {
		return nil, fmt.Errorf("error sending POST request: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("create account: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return &created, nil
}

// BulkCreateAccounts registers many tracked accounts at once and returns
// how many were newly inserted.
func (c *Client) BulkCreateAccounts(ctx context.Context, accounts []types.TrackedAccount) (int, error) {
	var (
		result bulkResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(accounts).
		SetResult(&result).
		SetError(&apiErr).
		Post("/accounts/bulk")
	if err != nil {
		return 0, fmt.Errorf("error sending POST request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("bulk create accounts: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return result.Inserted, nil
}

// ListAccounts returns every tracked account.
func (c *Client) ListAccounts(ctx context.Context) ([]types.TrackedAccount, error) {
	var (
		accounts []types.TrackedAccount
		apiErr   apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&accounts).
		SetError(&apiErr).
		Get("/accounts")
	if err != nil {
		return nil, fmt.Errorf("error sending GET request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list accounts: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return accounts, nil
}

// GetAccount fetches a single tracked account by handle.
func (c *Client) GetAccount(ctx context.Context, handle string) (*types.TrackedAccount, error) {
	var (
		account types.TrackedAccount
		apiErr  apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&account).
		SetError(&apiErr).
		Get("/accounts/" + handle)
	if err != nil {
		return nil, fmt.Errorf("error sending GET request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get account: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return &account, nil
}

// DeleteAccount removes a tracked account by handle.
func (c *Client) DeleteAccount(ctx context.Context, handle string) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Delete("/accounts/" + handle)
	if err != nil {
		return fmt.Errorf("error sending DELETE request: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("delete account: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return nil
}
