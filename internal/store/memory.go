package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

// Memory implements Store in process memory. It mirrors the Mongo
// implementation's unique-key semantics and is used in tests and in
// standalone runs without a MONGODB_URI.
type Memory struct {
	mu         sync.Mutex
	accounts   map[string]types.TrackedAccount
	cursors    map[string]types.SchedulerCursor
	raw        map[string]types.RawPost
	classified map[string]types.ClassifiedPost
	seq        int64
	rawOrder   []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:   make(map[string]types.TrackedAccount),
		cursors:    make(map[string]types.SchedulerCursor),
		raw:        make(map[string]types.RawPost),
		classified: make(map[string]types.ClassifiedPost),
	}
}

func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) CreateAccount(_ context.Context, a *types.TrackedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Handle]; ok {
		return ErrDuplicate
	}
	if a.CreatedAt.IsZero() {
		m.seq++
		a.CreatedAt = time.Now().UTC().Add(time.Duration(m.seq))
	}
	m.accounts[a.Handle] = *a
	return nil
}

func (m *Memory) CreateAccounts(ctx context.Context, accounts []types.TrackedAccount) (int, error) {
	inserted := 0
	for i := range accounts {
		if err := m.CreateAccount(ctx, &accounts[i]); err == nil {
			inserted++
		}
	}
	return inserted, nil
}

func (m *Memory) GetAccount(_ context.Context, handle string) (*types.TrackedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]types.TrackedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedAccounts(func(types.TrackedAccount) bool { return true }), nil
}

func (m *Memory) ListActiveAccounts(_ context.Context) ([]types.TrackedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedAccounts(func(a types.TrackedAccount) bool { return a.Active }), nil
}

func (m *Memory) sortedAccounts(keep func(types.TrackedAccount) bool) []types.TrackedAccount {
	accounts := make([]types.TrackedAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		if keep(a) {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].Handle < accounts[j].Handle
	})
	return accounts
}

func (m *Memory) UpdateAccount(_ context.Context, a *types.TrackedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accounts[a.Handle]
	if !ok {
		return ErrNotFound
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = existing.CreatedAt
	}
	m.accounts[a.Handle] = *a
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[handle]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, handle)
	return nil
}

func (m *Memory) InsertRawPost(_ context.Context, p *types.RawPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.raw[p.PostID]; ok {
		return ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = types.PostStatusUnprocessed
	}
	m.raw[p.PostID] = *p
	m.rawOrder = append(m.rawOrder, p.PostID)
	return nil
}

func (m *Memory) HasRawPost(_ context.Context, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.raw[postID]
	return ok, nil
}

func (m *Memory) ListRawPostIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{}, len(m.raw))
	for id := range m.raw {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) ListUnprocessed(_ context.Context, limit int) ([]types.RawPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var posts []types.RawPost
	for _, id := range m.rawOrder {
		p := m.raw[id]
		if p.Status != types.PostStatusUnprocessed {
			continue
		}
		posts = append(posts, p)
		if len(posts) >= limit {
			break
		}
	}
	return posts, nil
}

func (m *Memory) SetRawPostStatus(_ context.Context, postID string, status types.PostStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.raw[postID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	m.raw[postID] = p
	return nil
}

func (m *Memory) InsertClassifiedPost(_ context.Context, p *types.ClassifiedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classified[p.PostID]; ok {
		return ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.classified[p.PostID] = *p
	return nil
}

// GetClassifiedPost is a test helper; the Mongo implementation has no
// matching read path because classified posts are write-only for the core.
func (m *Memory) GetClassifiedPost(postID string) (*types.ClassifiedPost, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.classified[postID]
	if !ok {
		return nil, false
	}
	return &p, true
}

// GetRawPost is a test helper mirroring HasRawPost with the full record.
func (m *Memory) GetRawPost(postID string) (*types.RawPost, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.raw[postID]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (m *Memory) GetOrCreateCursor(_ context.Context, name string) (*types.SchedulerCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[name]
	if !ok {
		c = types.SchedulerCursor{Name: name, LastIndex: 0}
		m.cursors[name] = c
	}
	return &c, nil
}

func (m *Memory) SaveCursor(_ context.Context, c *types.SchedulerCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[c.Name] = *c
	return nil
}
