package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

const latestColumnCount = 5

const latestUpsertClause = `
	ON CONFLICT (symbol) DO UPDATE SET
		id = EXCLUDED.id,
		latest_close = EXCLUDED.latest_close,
		active = EXCLUDED.active,
		source = EXCLUDED.source`

// InsertLatest writes new snapshots; a symbol already present fails the batch.
func (r *Repository) InsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	return r.writeLatest(ctx, snaps, "")
}

// UpsertLatest creates or fully replaces the snapshot of each symbol.
func (r *Repository) UpsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	return r.writeLatest(ctx, collapseLatest(snaps), latestUpsertClause)
}

func (r *Repository) writeLatest(ctx context.Context, snaps []domain.LatestSnapshot, conflict string) error {
	if len(snaps) == 0 {
		return nil
	}
	normalized := make([]domain.LatestSnapshot, len(snaps))
	for i, s := range snaps {
		n, err := s.Normalize()
		if err != nil {
			return fmt.Errorf("invalid latest snapshot %s: %w", s.Symbol, err)
		}
		normalized[i] = n
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range chunks(len(normalized), latestColumnCount) {
			batch := normalized[c[0]:c[1]]
			query := fmt.Sprintf("INSERT INTO %s (symbol, id, latest_close, active, source) VALUES %s%s",
				r.latestTable, placeholders(len(batch), latestColumnCount), conflict)

			args := make([]interface{}, 0, len(batch)*latestColumnCount)
			for _, s := range batch {
				var symbol interface{}
				if s.Symbol != "" {
					symbol = s.Symbol
				}
				args = append(args, symbol, s.BarID, s.LatestClose, s.Active, s.Source)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to write %d latest snapshots: %w", len(batch), mapError(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug(ctx, "Latest snapshots written", map[string]interface{}{"table": r.latestTable, "count": len(snaps)})
	return nil
}

// collapseLatest keeps the last snapshot given for each symbol.
func collapseLatest(snaps []domain.LatestSnapshot) []domain.LatestSnapshot {
	index := make(map[string]int, len(snaps))
	out := make([]domain.LatestSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if i, ok := index[s.Symbol]; ok {
			out[i] = s
			continue
		}
		index[s.Symbol] = len(out)
		out = append(out, s)
	}
	return out
}

// FindLatest retrieves the snapshot for a symbol.
func (r *Repository) FindLatest(ctx context.Context, symbol string) (*domain.LatestSnapshot, error) {
	query := fmt.Sprintf(`SELECT symbol, id, latest_close, active, source FROM %s WHERE symbol = $1`, r.latestTable)
	s, err := scanLatest(r.db.QueryRowContext(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest snapshot for %s: %w", symbol, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest snapshot for %s: %w", symbol, err)
	}
	return s, nil
}

// ListLatest retrieves every snapshot ordered by symbol.
func (r *Repository) ListLatest(ctx context.Context) ([]domain.LatestSnapshot, error) {
	query := fmt.Sprintf(`SELECT symbol, id, latest_close, active, source FROM %s ORDER BY symbol`, r.latestTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	snaps := make([]domain.LatestSnapshot, 0)
	for rows.Next() {
		s, err := scanLatest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan latest snapshot during ListLatest: %w", err)
		}
		snaps = append(snaps, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest snapshot rows: %w", err)
	}
	return snaps, nil
}

// InactiveSymbols lists symbols flagged inactive, ordered by symbol.
func (r *Repository) InactiveSymbols(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT symbol FROM %s WHERE NOT active ORDER BY symbol`, r.latestTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query inactive symbols: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan inactive symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inactive symbol rows: %w", err)
	}
	return symbols, nil
}

// SetActive updates the active flags in a single UPDATE ... FROM unnest(...) statement.
func (r *Repository) SetActive(ctx context.Context, status map[string]bool) (int64, error) {
	if len(status) == 0 {
		return 0, nil
	}
	symbols, flags := splitStatus(status)

	query := fmt.Sprintf(`
	UPDATE %[1]s AS l SET active = data.active
	FROM unnest($1::text[], $2::boolean[]) AS data (symbol, active)
	WHERE l.symbol = data.symbol`, r.latestTable)

	res, err := r.db.ExecContext(ctx, query, pq.Array(symbols), pq.Array(flags))
	if err != nil {
		return 0, fmt.Errorf("failed to update active flags: %w: %w", ports.ErrUpdateFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for active update: %w", err)
	}
	r.logger.Debug(ctx, "Active flags updated", map[string]interface{}{"requested": len(status), "updated": n})
	return n, nil
}

// splitStatus turns the status map into parallel arrays ordered by symbol.
func splitStatus(status map[string]bool) ([]string, []bool) {
	symbols := make([]string, 0, len(status))
	for s := range status {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	flags := make([]bool, len(symbols))
	for i, s := range symbols {
		flags[i] = status[s]
	}
	return symbols, flags
}

// scanLatest scans a row into a domain.LatestSnapshot struct.
func scanLatest(s scanner) (*domain.LatestSnapshot, error) {
	l := &domain.LatestSnapshot{}
	if err := s.Scan(&l.Symbol, &l.BarID, &l.LatestClose, &l.Active, &l.Source); err != nil {
		return nil, err
	}
	if l.LatestClose.Valid {
		l.LatestClose.Time = l.LatestClose.Time.UTC()
	}
	return l, nil
}
