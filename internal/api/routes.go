package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

// APIError is the JSON error envelope.
type APIError struct {
	Error string `json:"error"`
}

// BulkResponse reports how many accounts a bulk insert landed.
type BulkResponse struct {
	Inserted int `json:"inserted"`
	Total    int `json:"total"`
}

func validateAccount(a *types.TrackedAccount) error {
	a.Handle = strings.TrimSpace(strings.TrimPrefix(a.Handle, "@"))
	a.ProfileURL = strings.TrimSpace(a.ProfileURL)
	if a.Handle == "" {
		return errors.New("handle is required")
	}
	if a.ProfileURL == "" {
		return errors.New("profile_url is required")
	}
	return nil
}

// createAccount adds a single tracked account.
func createAccount(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		a := &types.TrackedAccount{Active: true}
		if err := c.Bind(a); err != nil {
			return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
		}
		if err := validateAccount(a); err != nil {
			return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
		}
		if err := accounts.CreateAccount(c.Request().Context(), a); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return c.JSON(http.StatusConflict, APIError{Error: "account already tracked"})
			}
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, a)
	}
}

// bulkCreateAccounts adds many tracked accounts at once, skipping
// duplicates. An empty or malformed payload is rejected outright.
func bulkCreateAccounts(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var batch []types.TrackedAccount
		if err := c.Bind(&batch); err != nil {
			return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
		}
		if len(batch) == 0 {
			return c.JSON(http.StatusBadRequest, APIError{Error: "empty bulk payload"})
		}
		for i := range batch {
			if err := validateAccount(&batch[i]); err != nil {
				return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
			}
			batch[i].Active = true
		}
		inserted, err := accounts.CreateAccounts(c.Request().Context(), batch)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, BulkResponse{Inserted: inserted, Total: len(batch)})
	}
}

func listAccounts(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		all, err := accounts.ListAccounts(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		if all == nil {
			all = []types.TrackedAccount{}
		}
		return c.JSON(http.StatusOK, all)
	}
}

func getAccount(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		a, err := accounts.GetAccount(c.Request().Context(), c.Param("handle"))
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, APIError{Error: "account not found"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, a)
	}
}

func updateAccount(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		a := &types.TrackedAccount{}
		if err := c.Bind(a); err != nil {
			return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
		}
		a.Handle = c.Param("handle")
		if err := validateAccount(a); err != nil {
			return c.JSON(http.StatusBadRequest, APIError{Error: err.Error()})
		}
		if err := accounts.UpdateAccount(c.Request().Context(), a); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.JSON(http.StatusNotFound, APIError{Error: "account not found"})
			}
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, a)
	}
}

func deleteAccount(accounts store.AccountStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := accounts.DeleteAccount(c.Request().Context(), c.Param("handle"))
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, APIError{Error: "account not found"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, APIError{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
