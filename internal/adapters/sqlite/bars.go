package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guregu/null/v5"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

const barColumns = `id, symbol, open_time, open_price, high_price, low_price, close_price,
	volume_stock, volume_dollar, vwap, trades`

// InsertBars writes bars with plain INSERTs inside one transaction.
func (r *Repository) InsertBars(ctx context.Context, bars ...domain.Bar) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.barTable, barColumns)
	return r.writeBars(ctx, query, bars)
}

// UpsertBars merges bars on (symbol, open_time). The stored id is kept.
func (r *Repository) UpsertBars(ctx context.Context, bars ...domain.Bar) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, open_time) DO UPDATE SET
		open_price = excluded.open_price,
		high_price = excluded.high_price,
		low_price = excluded.low_price,
		close_price = excluded.close_price,
		volume_stock = excluded.volume_stock,
		volume_dollar = excluded.volume_dollar,
		vwap = excluded.vwap,
		trades = excluded.trades`, r.barTable, barColumns)
	return r.writeBars(ctx, query, bars)
}

func (r *Repository) writeBars(ctx context.Context, query string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	normalized := make([]domain.Bar, len(bars))
	for i, b := range bars {
		n, err := b.Normalize()
		if err != nil {
			return fmt.Errorf("invalid bar %s@%s: %w", b.Symbol, b.OpenTime, err)
		}
		normalized[i] = n
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare bar write: %w: %w", ports.ErrQueryFailed, err)
		}
		defer stmt.Close()

		for _, b := range normalized {
			if _, err := stmt.ExecContext(ctx, barArgs(b)...); err != nil {
				return fmt.Errorf("failed to write bar id=%d %s@%s: %w", b.ID, b.Symbol, b.OpenTime, mapError(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug(ctx, "Bars written", map[string]interface{}{"table": r.barTable, "count": len(bars)})
	return nil
}

func barArgs(b domain.Bar) []interface{} {
	return []interface{}{
		b.ID,
		null.NewString(b.Symbol, b.Symbol != ""),
		null.NewTime(b.OpenTime, !b.OpenTime.IsZero()),
		b.OpenPrice, b.HighPrice, b.LowPrice, b.ClosePrice,
		b.VolumeStock, b.VolumeDollar, b.VWAP,
		b.Trades,
	}
}

// FindBars runs a range scan over the (symbol, open_time) unique index.
func (r *Repository) FindBars(ctx context.Context, q ports.BarQuery) ([]domain.Bar, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if !q.From.IsZero() {
		conds = append(conds, "open_time >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		conds = append(conds, "open_time < ?")
		args = append(args, q.To.UTC())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", barColumns, r.barTable)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY symbol, open_time")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for symbol %q: %w: %w", q.Symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar during FindBars: %w", err)
		}
		bars = append(bars, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}
	return bars, nil
}

// FindBarByID retrieves a bar by its surrogate id.
func (r *Repository) FindBarByID(ctx context.Context, id int64) (*domain.Bar, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, barColumns, r.barTable)
	b, err := scanBar(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bar id %d: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query bar by ID %d: %w", id, err)
	}
	return b, nil
}

// NextIDs reserves n ids from the table's counter. Every call moves the counter
// past the highest id already present, so rows written with explicit ids are
// never handed out again.
func (r *Repository) NextIDs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("id count must be positive, got %d: %w", n, ports.ErrInvalidRequest)
	}
	seed := fmt.Sprintf(`
	INSERT INTO id_sequences (name, last_value)
	SELECT ?, COALESCE(MAX(id), 0) FROM %s WHERE true
	ON CONFLICT (name) DO NOTHING`, r.barTable)
	bump := fmt.Sprintf(`
	UPDATE id_sequences
	SET last_value = MAX(last_value, (SELECT COALESCE(MAX(id), 0) FROM %s)) + ?
	WHERE name = ? RETURNING last_value`, r.barTable)

	var last int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, seed, r.barTable); err != nil {
			return fmt.Errorf("failed to seed id sequence for %s: %w", r.barTable, err)
		}
		if err := tx.QueryRowContext(ctx, bump, n, r.barTable).Scan(&last); err != nil {
			return fmt.Errorf("failed to advance id sequence for %s: %w", r.barTable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, n)
	for i := range ids {
		ids[i] = last - int64(n) + 1 + int64(i)
	}
	return ids, nil
}

// scanBar scans a row into a domain.Bar struct.
func scanBar(s scanner) (*domain.Bar, error) {
	b := &domain.Bar{}
	var symbol null.String
	var openTime null.Time
	err := s.Scan(
		&b.ID, &symbol, &openTime,
		&b.OpenPrice, &b.HighPrice, &b.LowPrice, &b.ClosePrice,
		&b.VolumeStock, &b.VolumeDollar, &b.VWAP,
		&b.Trades)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	b.Symbol = symbol.String
	if openTime.Valid {
		b.OpenTime = openTime.Time.UTC()
	}
	return b, nil
}
