package domain

import (
	"github.com/guregu/null/v5"
)

// LatestSnapshot is the single per-symbol pointer to the most recent closed bar.
// BarID is not enforced as a reference into the bar table.
type LatestSnapshot struct {
	Symbol      string      `json:"symbol"`
	BarID       null.Int    `json:"id"`
	LatestClose null.Time   `json:"latest_close"`
	Active      null.Bool   `json:"active"`
	Source      null.String `json:"source"`
}

// Normalize returns a copy with LatestClose in UTC, validating column lengths.
func (s LatestSnapshot) Normalize() (LatestSnapshot, error) {
	if err := CheckLength("symbol", s.Symbol); err != nil {
		return LatestSnapshot{}, err
	}
	if s.Source.Valid {
		if err := CheckLength("source", s.Source.String); err != nil {
			return LatestSnapshot{}, err
		}
	}
	if s.LatestClose.Valid {
		s.LatestClose = null.TimeFrom(s.LatestClose.Time.UTC())
	}
	return s, nil
}

// IsActive reports whether the snapshot is flagged active. NULL counts as inactive.
func (s LatestSnapshot) IsActive() bool {
	return s.Active.Valid && s.Active.Bool
}
