package domain

import (
	"time"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

// Bar represents one aggregated OHLCV row for a symbol and time bucket.
// Only Symbol and OpenTime are required; every other field may be NULL when
// the provider delivered an incomplete bucket.
type Bar struct {
	ID           int64               `json:"id"`            // Surrogate key, unique per row
	Symbol       string              `json:"symbol"`        // Ticker, empty means NULL
	OpenTime     time.Time           `json:"open_time"`     // Start of the bucket, zero means NULL
	OpenPrice    decimal.NullDecimal `json:"open_price"`    // DECIMAL(24,8)
	HighPrice    decimal.NullDecimal `json:"high_price"`    // DECIMAL(24,8)
	LowPrice     decimal.NullDecimal `json:"low_price"`     // DECIMAL(24,8)
	ClosePrice   decimal.NullDecimal `json:"close_price"`   // DECIMAL(24,8)
	VolumeStock  decimal.NullDecimal `json:"volume_stock"`  // Units traded in the bucket
	VolumeDollar decimal.NullDecimal `json:"volume_dollar"` // Notional traded in the bucket
	VWAP         decimal.NullDecimal `json:"vwap"`          // Volume-weighted average price
	Trades       null.Int            `json:"trades"`        // Number of trades
}

// Normalize returns a copy of the bar ready to be persisted: OpenTime in UTC
// and every fixed-point column rounded to the column scale.
// It fails with ErrValueTooLong or ErrNumericOverflow.
func (b Bar) Normalize() (Bar, error) {
	if err := CheckLength("symbol", b.Symbol); err != nil {
		return Bar{}, err
	}
	if !b.OpenTime.IsZero() {
		b.OpenTime = b.OpenTime.UTC()
	}

	fields := []struct {
		name string
		v    *decimal.NullDecimal
	}{
		{"open_price", &b.OpenPrice},
		{"high_price", &b.HighPrice},
		{"low_price", &b.LowPrice},
		{"close_price", &b.ClosePrice},
		{"volume_stock", &b.VolumeStock},
		{"volume_dollar", &b.VolumeDollar},
		{"vwap", &b.VWAP},
	}
	for _, f := range fields {
		n, err := NormalizeDecimal(f.name, *f.v)
		if err != nil {
			return Bar{}, err
		}
		*f.v = n
	}
	return b, nil
}

// Key identifies the bucket a bar belongs to.
func (b Bar) Key() BarKey {
	return BarKey{Symbol: b.Symbol, OpenTime: b.OpenTime.UTC()}
}

// BarKey is the natural key of a bar: at most one bar per symbol per bucket.
type BarKey struct {
	Symbol   string
	OpenTime time.Time
}

// Dec wraps a decimal as a non-NULL column value.
func Dec(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// DecString parses s into a non-NULL column value. An empty string yields NULL.
func DecString(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return Dec(d), nil
}

// DollarVolume derives the notional volume of a bucket as volume * vwap.
// The result is NULL when either input is NULL.
func DollarVolume(volume, vwap decimal.NullDecimal) decimal.NullDecimal {
	if !volume.Valid || !vwap.Valid {
		return decimal.NullDecimal{}
	}
	return Dec(volume.Decimal.Mul(vwap.Decimal))
}
