package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// fakeKV is an in-memory stand-in for *redis.Client.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error // returned by every command when set
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// memLatest is a map-backed ports.LatestRepository that counts lookups.
type memLatest struct {
	snaps    map[string]domain.LatestSnapshot
	finds    int
	writeErr error
}

func (m *memLatest) InsertLatest(_ context.Context, snaps ...domain.LatestSnapshot) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, s := range snaps {
		if _, ok := m.snaps[s.Symbol]; ok {
			return ports.ErrPrimaryKeyViolation
		}
	}
	for _, s := range snaps {
		m.snaps[s.Symbol] = s
	}
	return nil
}

func (m *memLatest) UpsertLatest(_ context.Context, snaps ...domain.LatestSnapshot) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, s := range snaps {
		m.snaps[s.Symbol] = s
	}
	return nil
}

func (m *memLatest) FindLatest(_ context.Context, symbol string) (*domain.LatestSnapshot, error) {
	m.finds++
	s, ok := m.snaps[symbol]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &s, nil
}

func (m *memLatest) ListLatest(context.Context) ([]domain.LatestSnapshot, error) {
	return nil, nil
}

func (m *memLatest) InactiveSymbols(context.Context) ([]string, error) {
	return nil, nil
}

func (m *memLatest) SetActive(_ context.Context, status map[string]bool) (int64, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	var n int64
	for sym, active := range status {
		if s, ok := m.snaps[sym]; ok {
			s.Active = null.BoolFrom(active)
			m.snaps[sym] = s
			n++
		}
	}
	return n, nil
}

var _ ports.LatestRepository = (*LatestCache)(nil)

func snapshot(symbol string, active bool) domain.LatestSnapshot {
	return domain.LatestSnapshot{
		Symbol:      symbol,
		BarID:       null.IntFrom(42),
		LatestClose: null.TimeFrom(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Active:      null.BoolFrom(active),
		Source:      null.StringFrom("alpaca"),
	}
}

func setupCache(t *testing.T) (*LatestCache, *memLatest, *fakeKV) {
	t.Helper()
	repo := &memLatest{snaps: map[string]domain.LatestSnapshot{}}
	kv := newFakeKV()
	return NewLatestCache(repo, kv, "spot_1d_latest", time.Minute, nil), repo, kv
}

func TestLatestCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	c, repo, kv := setupCache(t)
	require.NoError(t, c.UpsertLatest(ctx, snapshot("AAPL", true)))

	first, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.finds)
	assert.Contains(t, kv.data, "spotstore:latest:spot_1d_latest:AAPL")
	assert.Equal(t, time.Minute, kv.ttls["spotstore:latest:spot_1d_latest:AAPL"])

	second, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.finds, "second lookup should be served from cache")

	assert.Equal(t, first.Symbol, second.Symbol)
	assert.Equal(t, first.BarID, second.BarID)
	assert.True(t, first.LatestClose.Time.Equal(second.LatestClose.Time))
	assert.Equal(t, first.Active, second.Active)
	assert.Equal(t, first.Source, second.Source)
}

func TestLatestCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, repo, kv := setupCache(t)

	_, err := c.FindLatest(ctx, "MSFT")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Empty(t, kv.data)

	_, err = c.FindLatest(ctx, "MSFT")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, 2, repo.finds)
}

func TestLatestCache_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _, kv := setupCache(t)
	require.NoError(t, c.InsertLatest(ctx, snapshot("AAPL", true), snapshot("TSLA", true)))

	_, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	_, err = c.FindLatest(ctx, "TSLA")
	require.NoError(t, err)
	require.Len(t, kv.data, 2)

	n, err := c.SetActive(ctx, map[string]bool{"AAPL": false})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, kv.data, "spotstore:latest:spot_1d_latest:AAPL")
	assert.Contains(t, kv.data, "spotstore:latest:spot_1d_latest:TSLA")

	got, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, got.IsActive(), "stale cached value must not survive SetActive")

	require.NoError(t, c.UpsertLatest(ctx, snapshot("TSLA", false)))
	got, err = c.FindLatest(ctx, "TSLA")
	require.NoError(t, err)
	assert.False(t, got.IsActive())
}

func TestLatestCache_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	c, repo, kv := setupCache(t)
	require.NoError(t, c.UpsertLatest(ctx, snapshot("AAPL", true)))
	_, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)

	repo.writeErr = ports.ErrQueryFailed
	err = c.UpsertLatest(ctx, snapshot("AAPL", false))
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
	assert.Contains(t, kv.data, "spotstore:latest:spot_1d_latest:AAPL")
}

func TestLatestCache_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, repo, kv := setupCache(t)
	require.NoError(t, c.UpsertLatest(ctx, snapshot("AAPL", true)))

	kv.err = errors.New("connection refused")

	got, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 1, repo.finds)

	n, err := c.SetActive(ctx, map[string]bool{"AAPL": false})
	require.NoError(t, err, "cache errors must not fail a committed write")
	assert.Equal(t, int64(1), n)
}

func TestLatestCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, repo, kv := setupCache(t)
	require.NoError(t, c.UpsertLatest(ctx, snapshot("AAPL", true)))
	kv.data["spotstore:latest:spot_1d_latest:AAPL"] = "{not json"

	got, err := c.FindLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 1, repo.finds)
	assert.NotEqual(t, "{not json", kv.data["spotstore:latest:spot_1d_latest:AAPL"])
}
