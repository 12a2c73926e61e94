package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/repository"
)

// memStore is an in-memory UserStore and StatsStore; tokenStore exposes its
// token table.
type memStore struct {
	mu      sync.Mutex
	nextID  uint64
	users   map[uint64]model.User
	nextTok uint64
	tokens  map[string]model.AccessToken
	err     error // returned by every call when set
}

func newMemStore() *memStore {
	return &memStore{users: map[uint64]model.User{}, tokens: map[string]model.AccessToken{}}
}

func inScope(u model.User, s model.Scope) bool {
	switch s {
	case model.ScopeWith:
		return true
	case model.ScopeOnly:
		return u.DeletedAt != nil
	default:
		return u.DeletedAt == nil
	}
}

// seed inserts a user created at the given instant.
func (m *memStore) seed(name string, created time.Time, deleted bool) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := model.User{
		ID:        m.nextID,
		Name:      name,
		Email:     strings.ToLower(name) + "@example.com",
		CreatedAt: created.UTC(),
		UpdatedAt: created.UTC(),
	}
	if deleted {
		d := created.UTC()
		u.DeletedAt = &d
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) Create(_ context.Context, name, email, hash string, now time.Time) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	m.nextID++
	now = now.UTC().Truncate(time.Second)
	u := model.User{ID: m.nextID, Name: name, Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetByID(_ context.Context, id uint64, scope model.Scope) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok || !inScope(u, scope) {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) List(_ context.Context, scope model.Scope, limit, offset int) ([]model.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var all []model.User
	for _, u := range m.users {
		if inScope(u, scope) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	if offset >= len(all) {
		return []model.User{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memStore) Update(_ context.Context, u model.User, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for id, other := range m.users {
		if id != u.ID && other.Email == repository.NormalizeEmail(u.Email) {
			return repository.ErrEmailExists
		}
	}
	u.UpdatedAt = now.UTC().Truncate(time.Second)
	m.users[u.ID] = u
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, id uint64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return repository.ErrNotFound
	}
	d := now.UTC()
	u.DeletedAt = &d
	m.users[id] = u
	return nil
}

func (m *memStore) Restore(_ context.Context, id uint64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt == nil {
		return repository.ErrNotFound
	}
	u.DeletedAt = nil
	m.users[id] = u
	return nil
}

func (m *memStore) ForceDelete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	for h, t := range m.tokens {
		if t.UserID == id {
			delete(m.tokens, h)
		}
	}
	return nil
}

func (m *memStore) Count(_ context.Context, scope model.Scope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, u := range m.users {
		if inScope(u, scope) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	ts, err := m.CreatedAtBetween(ctx, from, to)
	return int64(len(ts)), err
}

func (m *memStore) CreatedAtBetween(_ context.Context, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []time.Time
	for _, u := range m.users {
		if u.DeletedAt == nil && !u.CreatedAt.Before(from) && u.CreatedAt.Before(to) {
			out = append(out, u.CreatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// CountGrouped buckets on the UTC calendar like MySQL does.
func (m *memStore) CountGrouped(ctx context.Context, unit repository.GroupUnit, from, to time.Time) (map[string]int64, error) {
	ts, err := m.CreatedAtBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, t := range ts {
		out[bucketKey(unit, t.UTC())]++
	}
	return out, nil
}

// addToken stores a token row. Caller holds mu.
func (m *memStore) addToken(userID uint64, hash string, createdAt, expiresAt time.Time) {
	m.nextTok++
	m.tokens[hash] = model.AccessToken{ID: m.nextTok, UserID: userID, TokenHash: hash, CreatedAt: createdAt, ExpiresAt: expiresAt}
}

// tokenStore adapts memStore to TokenStore; its Create clashes with the
// user Create.
type tokenStore struct{ m *memStore }

func (t tokenStore) Create(_ context.Context, userID uint64, hash string, createdAt, expiresAt time.Time) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.err != nil {
		return t.m.err
	}
	t.m.addToken(userID, hash, createdAt, expiresAt)
	return nil
}

func (t tokenStore) GetByHash(_ context.Context, hash string) (model.AccessToken, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.err != nil {
		return model.AccessToken{}, t.m.err
	}
	tok, ok := t.m.tokens[hash]
	if !ok {
		return model.AccessToken{}, repository.ErrNotFound
	}
	return tok, nil
}

func (t tokenStore) DeleteByHash(_ context.Context, hash string) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	delete(t.m.tokens, hash)
	return nil
}

func (t tokenStore) Touch(_ context.Context, id uint64, at time.Time) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for h, tok := range t.m.tokens {
		if tok.ID == id {
			tok.LastUsedAt = &at
			t.m.tokens[h] = tok
		}
	}
	return nil
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher keeps published events and optionally fails.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.UserEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.UserEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Event
	}
	return out
}

var errStoreDown = errors.New("store down")
