package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/guregu/null/v5"
)

// Interval is a bar aggregation size such as "1h" or "1d".
type Interval struct {
	Amount int
	Unit   byte // one of m, h, d, w
}

var unitDurations = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseInterval parses "<amount><unit>" where unit is m, h, d or w.
func ParseInterval(s string) (Interval, error) {
	if len(s) < 2 {
		return Interval{}, fmt.Errorf("invalid interval %q", s)
	}
	unit := s[len(s)-1]
	if _, ok := unitDurations[unit]; !ok {
		return Interval{}, fmt.Errorf("invalid interval %q: unknown unit %q", s, string(unit))
	}
	amount, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || amount <= 0 {
		return Interval{}, fmt.Errorf("invalid interval %q: amount must be a positive integer", s)
	}
	return Interval{Amount: amount, Unit: unit}, nil
}

// MustParseInterval is ParseInterval for constants; it panics on bad input.
func MustParseInterval(s string) Interval {
	iv, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) String() string {
	return strconv.Itoa(i.Amount) + string(i.Unit)
}

// Duration returns the length of one bucket.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Amount) * unitDurations[i.Unit]
}

// Next returns the open time of the bucket following the one opened at t.
func (i Interval) Next(t time.Time) time.Time {
	return t.Add(i.Duration())
}

// IsActive reports whether a bucket opened at t is recent enough, relative to
// now, for its symbol to still be considered trading.
func (i Interval) IsActive(t, now time.Time) bool {
	return now.Sub(t) < i.Duration()
}

// BarTable is the bar table name for the interval, e.g. spot_1h.
func (i Interval) BarTable() string {
	return "spot_" + i.String()
}

// LatestTable is the snapshot table name for the interval, e.g. spot_1d_latest.
func (i Interval) LatestTable() string {
	return "spot_" + i.String() + "_latest"
}

// LatestClosed builds the snapshot for a symbol from its freshly fetched bars
// (ascending by OpenTime). The last bar is still forming, so the one before it
// is the latest closed bar. A single bar only produces a snapshot once it is
// too old to be forming, in which case the symbol is flagged inactive.
// Returns false when no snapshot should be written.
func LatestClosed(symbol, source string, iv Interval, bars []Bar, now time.Time) (LatestSnapshot, bool) {
	switch {
	case len(bars) > 1:
		closed := bars[len(bars)-2]
		return LatestSnapshot{
			Symbol:      symbol,
			BarID:       null.IntFrom(closed.ID),
			LatestClose: null.TimeFrom(closed.OpenTime),
			Active:      null.BoolFrom(true),
			Source:      null.StringFrom(source),
		}, true
	case len(bars) == 1:
		last := bars[0]
		if iv.IsActive(last.OpenTime, now) {
			return LatestSnapshot{}, false
		}
		return LatestSnapshot{
			Symbol:      symbol,
			BarID:       null.IntFrom(last.ID),
			LatestClose: null.TimeFrom(last.OpenTime),
			Active:      null.BoolFrom(false),
			Source:      null.StringFrom(source),
		}, true
	default:
		return LatestSnapshot{}, false
	}
}
