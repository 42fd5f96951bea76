// Package store defines the persistence boundary and its implementations.
// All pipeline idempotency rests on the unique-key guarantees declared
// here: at most one RawPost and one ClassifiedPost per post identifier,
// at most one TrackedAccount per handle.
package store

import (
	"context"
	"errors"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

var (
	// ErrDuplicate is returned by inserts that violate a unique key.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// AccountStore manages tracked accounts. Mutations come only from the
// admin API.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *types.TrackedAccount) error
	CreateAccounts(ctx context.Context, accounts []types.TrackedAccount) (int, error)
	GetAccount(ctx context.Context, handle string) (*types.TrackedAccount, error)
	ListAccounts(ctx context.Context) ([]types.TrackedAccount, error)
	// ListActiveAccounts returns active accounts in a stable order; the
	// rotation cursor indexes into this slice.
	ListActiveAccounts(ctx context.Context) ([]types.TrackedAccount, error)
	UpdateAccount(ctx context.Context, a *types.TrackedAccount) error
	DeleteAccount(ctx context.Context, handle string) error
}

// PostStore manages raw and classified posts.
type PostStore interface {
	// InsertRawPost inserts a new raw post, returning ErrDuplicate when a
	// record with the same PostID already exists.
	InsertRawPost(ctx context.Context, p *types.RawPost) error
	HasRawPost(ctx context.Context, postID string) (bool, error)
	// ListRawPostIDs returns the identifiers of every stored raw post.
	// This is a full-corpus scan per feed cycle; acceptable at current
	// volumes but a known scaling risk.
	ListRawPostIDs(ctx context.Context) (map[string]struct{}, error)
	ListUnprocessed(ctx context.Context, limit int) ([]types.RawPost, error)
	SetRawPostStatus(ctx context.Context, postID string, status types.PostStatus) error
	InsertClassifiedPost(ctx context.Context, p *types.ClassifiedPost) error
}

// CursorStore manages named scheduler cursors.
type CursorStore interface {
	// GetOrCreateCursor returns the named cursor, creating it at index 0
	// when absent.
	GetOrCreateCursor(ctx context.Context, name string) (*types.SchedulerCursor, error)
	SaveCursor(ctx context.Context, c *types.SchedulerCursor) error
}

// Store is the full persistence surface.
type Store interface {
	AccountStore
	PostStore
	CursorStore
	Close(ctx context.Context) error
}
