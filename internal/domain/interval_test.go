package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in       string
		want     time.Duration
		wantErr  bool
		wantName string
	}{
		{in: "1h", want: time.Hour, wantName: "spot_1h"},
		{in: "1d", want: 24 * time.Hour, wantName: "spot_1d"},
		{in: "15m", want: 15 * time.Minute, wantName: "spot_15m"},
		{in: "1w", want: 7 * 24 * time.Hour, wantName: "spot_1w"},
		{in: "", wantErr: true},
		{in: "h", wantErr: true},
		{in: "0h", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "1y", wantErr: true},
		{in: "1h; DROP TABLE x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			iv, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, iv.Duration())
			assert.Equal(t, tt.in, iv.String())
			assert.Equal(t, tt.wantName, iv.BarTable())
			assert.Equal(t, tt.wantName+"_latest", iv.LatestTable())
		})
	}
}

func TestInterval_NextAndIsActive(t *testing.T) {
	iv := MustParseInterval("1h")
	open := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), iv.Next(open))
	assert.True(t, iv.IsActive(open, open.Add(59*time.Minute)))
	assert.False(t, iv.IsActive(open, open.Add(time.Hour)))
}

func TestLatestClosed(t *testing.T) {
	iv := MustParseInterval("1h")
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	bars := []Bar{
		{ID: 1, Symbol: "AAPL", OpenTime: t0},
		{ID: 2, Symbol: "AAPL", OpenTime: t0.Add(time.Hour)},
		{ID: 3, Symbol: "AAPL", OpenTime: t0.Add(2 * time.Hour)},
	}

	t.Run("second to last bar is the latest closed", func(t *testing.T) {
		snap, ok := LatestClosed("AAPL", "alpaca", iv, bars, t0.Add(2*time.Hour+time.Minute))
		require.True(t, ok)
		assert.Equal(t, "AAPL", snap.Symbol)
		assert.Equal(t, int64(2), snap.BarID.Int64)
		assert.True(t, snap.LatestClose.Time.Equal(t0.Add(time.Hour)))
		assert.True(t, snap.IsActive())
		assert.Equal(t, "alpaca", snap.Source.String)
	})

	t.Run("single forming bar yields nothing", func(t *testing.T) {
		_, ok := LatestClosed("AAPL", "alpaca", iv, bars[:1], t0.Add(30*time.Minute))
		assert.False(t, ok)
	})

	t.Run("single stale bar marks symbol inactive", func(t *testing.T) {
		snap, ok := LatestClosed("AAPL", "alpaca", iv, bars[:1], t0.Add(3*time.Hour))
		require.True(t, ok)
		assert.Equal(t, int64(1), snap.BarID.Int64)
		assert.False(t, snap.IsActive())
		assert.True(t, snap.Active.Valid)
	})

	t.Run("no bars", func(t *testing.T) {
		_, ok := LatestClosed("AAPL", "alpaca", iv, nil, t0)
		assert.False(t, ok)
	})
}
