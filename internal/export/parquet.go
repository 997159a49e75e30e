package export

import (
	"time"

	"github.com/parquet-go/parquet-go"

	"spotstore/internal/domain"
)

// barRow is the parquet layout of a bar. Decimals are kept as text so values
// stay exact; nil pointers are written as parquet nulls.
type barRow struct {
	ID           int64     `parquet:"id"`
	Symbol       string    `parquet:"symbol"`
	OpenTime     time.Time `parquet:"open_time"`
	OpenPrice    *string   `parquet:"open_price,optional"`
	HighPrice    *string   `parquet:"high_price,optional"`
	LowPrice     *string   `parquet:"low_price,optional"`
	ClosePrice   *string   `parquet:"close_price,optional"`
	VolumeStock  *string   `parquet:"volume_stock,optional"`
	VolumeDollar *string   `parquet:"volume_dollar,optional"`
	VWAP         *string   `parquet:"vwap,optional"`
	Trades       *int64    `parquet:"trades,optional"`
}

// WriteBarsParquet writes bars as a single parquet file.
func WriteBarsParquet(bars []domain.Bar, path string) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			ID:           b.ID,
			Symbol:       b.Symbol,
			OpenTime:     b.OpenTime.UTC(),
			OpenPrice:    optionalText(decimalText(b.OpenPrice)),
			HighPrice:    optionalText(decimalText(b.HighPrice)),
			LowPrice:     optionalText(decimalText(b.LowPrice)),
			ClosePrice:   optionalText(decimalText(b.ClosePrice)),
			VolumeStock:  optionalText(decimalText(b.VolumeStock)),
			VolumeDollar: optionalText(decimalText(b.VolumeDollar)),
			VWAP:         optionalText(decimalText(b.VWAP)),
		}
		if b.Trades.Valid {
			n := b.Trades.Int64
			rows[i].Trades = &n
		}
	}
	return parquet.WriteFile(path, rows)
}

func optionalText(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
