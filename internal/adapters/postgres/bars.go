package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/guregu/null/v5"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

const (
	barColumns = `id, symbol, open_time, open_price, high_price, low_price, close_price,
		volume_stock, volume_dollar, vwap, trades`
	barColumnCount = 11
)

const barUpsertClause = `
	ON CONFLICT (symbol, open_time) DO UPDATE SET
		open_price = EXCLUDED.open_price,
		high_price = EXCLUDED.high_price,
		low_price = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		volume_stock = EXCLUDED.volume_stock,
		volume_dollar = EXCLUDED.volume_dollar,
		vwap = EXCLUDED.vwap,
		trades = EXCLUDED.trades`

// InsertBars writes bars with multi-row INSERTs inside one transaction.
func (r *Repository) InsertBars(ctx context.Context, bars ...domain.Bar) error {
	return r.writeBars(ctx, bars, "")
}

// UpsertBars merges bars on (symbol, open_time). The stored id is kept.
func (r *Repository) UpsertBars(ctx context.Context, bars ...domain.Bar) error {
	// one statement cannot touch the same row twice, so fold repeats first
	return r.writeBars(ctx, collapseBars(bars), barUpsertClause)
}

func (r *Repository) writeBars(ctx context.Context, bars []domain.Bar, conflict string) error {
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
		for _, c := range chunks(len(normalized), barColumnCount) {
			batch := normalized[c[0]:c[1]]
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s",
				r.barTable, barColumns, placeholders(len(batch), barColumnCount), conflict)

			args := make([]interface{}, 0, len(batch)*barColumnCount)
			for _, b := range batch {
				args = append(args, barArgs(b)...)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to write %d bars: %w", len(batch), mapError(err))
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

// collapseBars folds bars sharing a (symbol, open_time) into one, the way
// sequential upserts would: the first id with the last values.
func collapseBars(bars []domain.Bar) []domain.Bar {
	index := make(map[domain.BarKey]int, len(bars))
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		k := b.Key()
		if i, ok := index[k]; ok {
			id := out[i].ID
			out[i] = b
			out[i].ID = id
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
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

// barQuery renders the SELECT for q with positional parameters.
func (r *Repository) barQuery(q ports.BarQuery) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Symbol != "" {
		args = append(args, q.Symbol)
		conds = append(conds, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		conds = append(conds, fmt.Sprintf("open_time >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		conds = append(conds, fmt.Sprintf("open_time < $%d", len(args)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", barColumns, r.barTable)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY symbol, open_time")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

// FindBars runs a range scan over the (symbol, open_time) unique index.
func (r *Repository) FindBars(ctx context.Context, q ports.BarQuery) ([]domain.Bar, error) {
	query, args := r.barQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, barColumns, r.barTable)
	b, err := scanBar(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bar id %d: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query bar by ID %d: %w", id, err)
	}
	return b, nil
}

// NextIDs draws n values from the bar id sequence. The sequence is first
// moved past the highest stored id, so rows written with explicit ids are
// never handed out again.
func (r *Repository) NextIDs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("id count must be positive, got %d: %w", n, ports.ErrInvalidRequest)
	}
	const query = `SELECT nextval($1::regclass) FROM generate_series(1, $2)`

	ids := make([]int64, 0, n)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.syncSequence(ctx, tx); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, query, r.seqName, n)
		if err != nil {
			return fmt.Errorf("failed to draw %d ids from %s: %w: %w", n, r.seqName, ports.ErrQueryFailed, err)
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("failed to scan id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating id rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// syncSequence advances the id sequence to the highest stored id when it lags
// behind. Allocators are serialised on an advisory lock held until tx ends,
// so the sequence is never moved backwards under a concurrent nextval.
func (r *Repository) syncSequence(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.seqName); err != nil {
		return fmt.Errorf("failed to lock id sequence %s: %w: %w", r.seqName, ports.ErrQueryFailed, err)
	}
	query := fmt.Sprintf(`
	SELECT setval($1::regclass, m)
	FROM (SELECT COALESCE(MAX(id), 0) AS m FROM %s) stored
	WHERE m > 0 AND m >= (SELECT last_value FROM %s)`, r.barTable, r.sequence)
	if _, err := tx.ExecContext(ctx, query, r.seqName); err != nil {
		return fmt.Errorf("failed to sync id sequence %s: %w: %w", r.seqName, ports.ErrQueryFailed, err)
	}
	return nil
}

// scanBar scans a row into a domain.Bar struct.
func scanBar(s scanner) (*domain.Bar, error) {
	b := &domain.Bar{}
	var openTime null.Time
	err := s.Scan(
		&b.ID, &b.Symbol, &openTime,
		&b.OpenPrice, &b.HighPrice, &b.LowPrice, &b.ClosePrice,
		&b.VolumeStock, &b.VolumeDollar, &b.VWAP,
		&b.Trades)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if openTime.Valid {
		b.OpenTime = openTime.Time.UTC()
	}
	return b, nil
}
