package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotstore/config"
	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// mockLogger records messages per level.
type mockLogger struct {
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StoreDriver:    config.DriverSQLite,
		DBPath:         filepath.Join(t.TempDir(), "spotstore.db"),
		BarInterval:    domain.MustParseInterval("1h"),
		LatestInterval: domain.MustParseInterval("1d"),
		SourceName:     "alpaca",
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, testConfig(t), &mockLogger{})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(ctx))
	ids, err := store.NextIDs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = store.FindLatest(ctx, "AAPL")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenStore(ctx, nil, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg := testConfig(t)
	cfg.StoreDriver = "mysql"
	_, err = OpenStore(ctx, cfg, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = testConfig(t)
	cfg.StoreDriver = config.DriverPostgres
	_, err = OpenStore(ctx, cfg, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError, "empty DSN is a configuration error")
}
