package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"spotstore/internal/domain"
)

var csvHeader = []string{
	"id", "symbol", "open_time",
	"open_price", "high_price", "low_price", "close_price",
	"volume_stock", "volume_dollar", "vwap", "trades",
}

// WriteBarsCSV writes bars with a header row. NULL columns become empty cells.
func WriteBarsCSV(bars []domain.Bar, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		err := writer.Write([]string{
			intCell(b.ID, true),
			b.Symbol,
			b.OpenTime.UTC().Format(time.RFC3339),
			decimalCell(b.OpenPrice),
			decimalCell(b.HighPrice),
			decimalCell(b.LowPrice),
			decimalCell(b.ClosePrice),
			decimalCell(b.VolumeStock),
			decimalCell(b.VolumeDollar),
			decimalCell(b.VWAP),
			intCell(b.Trades.Int64, b.Trades.Valid),
		})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
