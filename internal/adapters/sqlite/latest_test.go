package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

func snapshot(symbol string, id int64, active bool) domain.LatestSnapshot {
	return domain.LatestSnapshot{
		Symbol:      symbol,
		BarID:       null.IntFrom(id),
		LatestClose: null.TimeFrom(time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)),
		Active:      null.BoolFrom(active),
		Source:      null.StringFrom("alpaca"),
	}
}

func TestRepository_InsertLatest(t *testing.T) {
	tests := []struct {
		name    string
		setup   []domain.LatestSnapshot
		snap    domain.LatestSnapshot
		wantErr error
	}{
		{
			name: "new symbol",
			snap: snapshot("AAPL", 1, true),
		},
		{
			name:    "same symbol twice",
			setup:   []domain.LatestSnapshot{snapshot("AAPL", 1, true)},
			snap:    snapshot("AAPL", 2, true),
			wantErr: ports.ErrPrimaryKeyViolation,
		},
		{
			name:    "missing symbol",
			snap:    snapshot("", 1, true),
			wantErr: ports.ErrNotNullViolation,
		},
		{
			name: "source too long",
			snap: domain.LatestSnapshot{
				Symbol: "AAPL",
				Source: null.StringFrom("a-very-long-provider-name"),
			},
			wantErr: ports.ErrValueTooLong,
		},
		{
			name: "only symbol set",
			snap: domain.LatestSnapshot{Symbol: "AAPL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()

			ctx := context.Background()
			if len(tt.setup) > 0 {
				require.NoError(t, repo.InsertLatest(ctx, tt.setup...))
			}

			err := repo.InsertLatest(ctx, tt.snap)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			found, err := repo.FindLatest(ctx, tt.snap.Symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.snap.Symbol, found.Symbol)
			assert.Equal(t, tt.snap.BarID, found.BarID)
			assert.Equal(t, tt.snap.Active, found.Active)
			assert.Equal(t, tt.snap.Source, found.Source)
			assert.Equal(t, tt.snap.LatestClose.Valid, found.LatestClose.Valid)
			assert.True(t, tt.snap.LatestClose.Time.Equal(found.LatestClose.Time))
		})
	}
}

func TestRepository_UpsertLatestReplacesRow(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLatest(ctx, snapshot("AAPL", 1, true)))

	next := snapshot("AAPL", 2, false)
	next.LatestClose = null.TimeFrom(time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC))
	next.Source = null.String{}
	require.NoError(t, repo.UpsertLatest(ctx, next))

	all, err := repo.ListLatest(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, int64(2), got.BarID.Int64)
	assert.False(t, got.IsActive())
	assert.False(t, got.Source.Valid)
	assert.True(t, next.LatestClose.Time.Equal(got.LatestClose.Time))
}

func TestRepository_FindLatestNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.FindLatest(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_InactiveSymbolsAndSetActive(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertLatest(ctx,
		snapshot("MSFT", 3, false),
		snapshot("AAPL", 1, true),
		snapshot("GME", 2, false),
		domain.LatestSnapshot{Symbol: "NUL"}, // NULL active is neither active nor listed inactive
	))

	inactive, err := repo.InactiveSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GME", "MSFT"}, inactive)

	n, err := repo.SetActive(ctx, map[string]bool{"GME": true, "TSLA": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "unknown symbols are ignored")

	inactive, err = repo.InactiveSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, inactive)

	gme, err := repo.FindLatest(ctx, "GME")
	require.NoError(t, err)
	assert.True(t, gme.IsActive())
	assert.Equal(t, int64(2), gme.BarID.Int64, "only the flag changes")

	n, err = repo.SetActive(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
