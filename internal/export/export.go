// Package export dumps bars to files for offline analysis.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"spotstore/internal/domain"
)

// Supported output formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// WriteFunc writes bars to path.
type WriteFunc func(bars []domain.Bar, path string) error

// WriterFor returns the writer for format (csv or parquet).
func WriterFor(format string) (WriteFunc, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return WriteBarsCSV, nil
	case FormatParquet:
		return WriteBarsParquet, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use: csv, parquet)", format)
	}
}

// decimalText renders a fixed-point column the way NUMERIC(24,8) prints it.
// NULL renders as "" and ok is false.
func decimalText(v decimal.NullDecimal) (s string, ok bool) {
	if !v.Valid {
		return "", false
	}
	return v.Decimal.StringFixed(domain.DecimalScale), true
}

func decimalCell(v decimal.NullDecimal) string {
	s, _ := decimalText(v)
	return s
}

func intCell(v int64, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
