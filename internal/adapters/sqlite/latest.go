package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// InsertLatest writes new snapshots; a symbol already present fails the batch.
func (r *Repository) InsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (symbol, id, latest_close, active, source)
	VALUES (?, ?, ?, ?, ?)`, r.latestTable)
	return r.writeLatest(ctx, query, snaps)
}

// UpsertLatest creates or fully replaces the snapshot of each symbol.
func (r *Repository) UpsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (symbol, id, latest_close, active, source)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (symbol) DO UPDATE SET
		id = excluded.id,
		latest_close = excluded.latest_close,
		active = excluded.active,
		source = excluded.source`, r.latestTable)
	return r.writeLatest(ctx, query, snaps)
}

func (r *Repository) writeLatest(ctx context.Context, query string, snaps []domain.LatestSnapshot) error {
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
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare latest write: %w: %w", ports.ErrQueryFailed, err)
		}
		defer stmt.Close()

		for _, s := range normalized {
			var symbol interface{}
			if s.Symbol != "" {
				symbol = s.Symbol
			}
			if _, err := stmt.ExecContext(ctx, symbol, s.BarID, s.LatestClose, s.Active, s.Source); err != nil {
				return fmt.Errorf("failed to write latest snapshot for %s: %w", s.Symbol, mapError(err))
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

// FindLatest retrieves the snapshot for a symbol.
func (r *Repository) FindLatest(ctx context.Context, symbol string) (*domain.LatestSnapshot, error) {
	query := fmt.Sprintf(`SELECT symbol, id, latest_close, active, source FROM %s WHERE symbol = ?`, r.latestTable)
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

// SetActive updates the active flag of the given symbols in one transaction.
func (r *Repository) SetActive(ctx context.Context, status map[string]bool) (int64, error) {
	if len(status) == 0 {
		return 0, nil
	}
	symbols := make([]string, 0, len(status))
	for s := range status {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	query := fmt.Sprintf(`UPDATE %s SET active = ? WHERE symbol = ?`, r.latestTable)
	var total int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare active update: %w: %w", ports.ErrQueryFailed, err)
		}
		defer stmt.Close()

		for _, s := range symbols {
			res, err := stmt.ExecContext(ctx, status[s], s)
			if err != nil {
				return fmt.Errorf("failed to set active=%t for %s: %w: %w", status[s], s, ports.ErrUpdateFailed, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected for %s: %w", s, err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Debug(ctx, "Active flags updated", map[string]interface{}{"requested": len(status), "updated": total})
	return total, nil
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
