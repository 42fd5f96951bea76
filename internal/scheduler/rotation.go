// Package scheduler rotates deep scans across the tracked-account list,
// one account per tick, with the position persisted so restarts resume
// where the rotation left off.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
	"github.com/itteamcrypto-ai/x-scraper/internal/store"
)

const defaultCursorName = "account-rotation"

// AccountScanner runs a deep scan for one account.
type AccountScanner interface {
	ScanAccount(ctx context.Context, account types.TrackedAccount) error
}

// Rotation advances the persisted cursor one step per tick.
type Rotation struct {
	accounts   store.AccountStore
	cursors    store.CursorStore
	scanner    AccountScanner
	cursorName string
}

// New builds a rotation over the given stores and scanner.
func New(accounts store.AccountStore, cursors store.CursorStore, scanner AccountScanner) *Rotation {
	return &Rotation{
		accounts:   accounts,
		cursors:    cursors,
		scanner:    scanner,
		cursorName: defaultCursorName,
	}
}

// Tick performs one scheduling step: pick the account under the cursor,
// deep-scan it, and advance. Advancement is unconditional on scan outcome
// so one permanently broken account cannot stall the rotation. Ticks are
// serialized by the caller; the feed scanner runs concurrently but shares
// only the browser, never the cursor.
func (r *Rotation) Tick(ctx context.Context) error {
	accounts, err := r.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	if len(accounts) == 0 {
		logrus.Debug("No active tracked accounts, skipping tick")
		return nil
	}

	cursor, err := r.cursors.GetOrCreateCursor(ctx, r.cursorName)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	// The list may have shrunk since the cursor was written.
	if cursor.LastIndex < 0 || cursor.LastIndex >= len(accounts) {
		logrus.Warnf("Cursor %d out of range for %d accounts, resetting", cursor.LastIndex, len(accounts))
		cursor.LastIndex = 0
		return r.cursors.SaveCursor(ctx, cursor)
	}

	account := accounts[cursor.LastIndex]
	logrus.Infof("Deep scanning @%s (%d/%d)", account.Handle, cursor.LastIndex+1, len(accounts))
	if err := r.scanner.ScanAccount(ctx, account); err != nil {
		logrus.WithError(err).Errorf("Deep scan failed for @%s", account.Handle)
	}

	cursor.LastIndex = (cursor.LastIndex + 1) % len(accounts)
	if err := r.cursors.SaveCursor(ctx, cursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// Run ticks at the given interval until the context is cancelled.
func (r *Rotation) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				logrus.WithError(err).Error("Scheduler tick failed")
			}
		}
	}
}
