package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotstore/internal/domain"
)

func sampleBars() []domain.Bar {
	ny := time.FixedZone("EST", -5*60*60)
	return []domain.Bar{
		{
			ID:           1,
			Symbol:       "AAPL",
			OpenTime:     time.Date(2024, 3, 1, 9, 0, 0, 0, ny),
			OpenPrice:    domain.Dec(decimal.RequireFromString("179.55")),
			HighPrice:    domain.Dec(decimal.RequireFromString("180.1")),
			LowPrice:     domain.Dec(decimal.RequireFromString("179.2")),
			ClosePrice:   domain.Dec(decimal.RequireFromString("179.98")),
			VolumeStock:  domain.Dec(decimal.RequireFromString("1200")),
			VolumeDollar: domain.Dec(decimal.RequireFromString("215844.12345678")),
			VWAP:         domain.Dec(decimal.RequireFromString("179.87010288")),
			Trades:       null.IntFrom(57),
		},
		{
			// Incomplete bucket: only the key and close are known.
			ID:         2,
			Symbol:     "AAPL",
			OpenTime:   time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
			ClosePrice: domain.Dec(decimal.RequireFromString("180")),
		},
	}
}

func TestWriterFor(t *testing.T) {
	for _, f := range []string{"csv", "CSV", " parquet "} {
		w, err := WriterFor(f)
		require.NoError(t, err, f)
		assert.NotNil(t, w)
	}
	_, err := WriterFor("json")
	assert.Error(t, err)
}

func TestWriteBarsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, WriteBarsCSV(sampleBars(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"1", "AAPL", "2024-03-01T14:00:00Z",
		"179.55000000", "180.10000000", "179.20000000", "179.98000000",
		"1200.00000000", "215844.12345678", "179.87010288", "57",
	}, records[1])
	assert.Equal(t, []string{
		"2", "AAPL", "2024-03-01T15:00:00Z",
		"", "", "", "180.00000000",
		"", "", "", "",
	}, records[2])
}

func TestWriteBarsCSV_BadPath(t *testing.T) {
	err := WriteBarsCSV(sampleBars(), filepath.Join(t.TempDir(), "missing", "bars.csv"))
	assert.Error(t, err)
}

func TestWriteBarsParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	require.NoError(t, WriteBarsParquet(sampleBars(), path))

	rows, err := parquet.ReadFile[barRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	full := rows[0]
	assert.Equal(t, int64(1), full.ID)
	assert.Equal(t, "AAPL", full.Symbol)
	assert.True(t, full.OpenTime.Equal(time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)))
	require.NotNil(t, full.VolumeDollar)
	assert.Equal(t, "215844.12345678", *full.VolumeDollar)
	require.NotNil(t, full.Trades)
	assert.Equal(t, int64(57), *full.Trades)

	sparse := rows[1]
	assert.Nil(t, sparse.OpenPrice)
	assert.Nil(t, sparse.VWAP)
	assert.Nil(t, sparse.Trades)
	require.NotNil(t, sparse.ClosePrice)
	assert.Equal(t, "180.00000000", *sparse.ClosePrice)
}
