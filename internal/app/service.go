package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"spotstore/config"
	"spotstore/internal/domain"
	"spotstore/internal/export"
	"spotstore/internal/ports"
)

// BarService holds the store workflows shared by the CLI commands.
type BarService struct {
	cfg    *config.Config
	logger ports.Logger
	store  ports.Store
	now    func() time.Time
}

// NewBarService creates a new application service instance.
func NewBarService(cfg *config.Config, logger ports.Logger, store ports.Store) (*BarService, error) {
	// Validate dependencies
	if cfg == nil || logger == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for BarService: %w", ports.ErrConfigurationError)
	}
	if cfg.SourceName == "" {
		return nil, fmt.Errorf("configuration SourceName must be set: %w", ports.ErrConfigurationError)
	}

	return &BarService{
		cfg:    cfg,
		logger: logger,
		store:  store,
		now:    time.Now,
	}, nil
}

// Migrate creates the tables if needed.
func (s *BarService) Migrate(ctx context.Context) error {
	if err := s.store.Migrate(ctx); err != nil {
		s.logger.Error(ctx, err, "Schema migration failed")
		return err
	}
	s.logger.Info(ctx, "Schema is up to date", map[string]interface{}{
		"barTable":    s.cfg.BarInterval.BarTable(),
		"latestTable": s.cfg.LatestInterval.LatestTable(),
	})
	return nil
}

// StoreBars upserts freshly fetched bars of one symbol, in any order, and
// refreshes the symbol's latest snapshot. Bars without an id get one from the
// store. The returned snapshot is nil when none was written.
// Bars and snapshot commit separately; a failed snapshot write is repaired by
// the next call for the symbol.
func (s *BarService) StoreBars(ctx context.Context, symbol string, bars []domain.Bar) (*domain.LatestSnapshot, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", ports.ErrInvalidRequest)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	bars = slices.Clone(bars)
	slices.SortStableFunc(bars, func(a, b domain.Bar) int { return a.OpenTime.Compare(b.OpenTime) })
	missing := 0
	for i := range bars {
		if bars[i].Symbol == "" {
			bars[i].Symbol = symbol
		} else if bars[i].Symbol != symbol {
			return nil, fmt.Errorf("bar %d belongs to %q, not %q: %w", i, bars[i].Symbol, symbol, ports.ErrInvalidRequest)
		}
		if !bars[i].VolumeDollar.Valid {
			bars[i].VolumeDollar = domain.DollarVolume(bars[i].VolumeStock, bars[i].VWAP)
		}
		if bars[i].ID == 0 {
			missing++
		}
	}

	if missing > 0 {
		ids, err := s.store.NextIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve %d bar ids: %w", missing, err)
		}
		next := 0
		for i := range bars {
			if bars[i].ID == 0 {
				bars[i].ID = ids[next]
				next++
			}
		}
	}

	if err := s.store.UpsertBars(ctx, bars...); err != nil {
		s.logger.Error(ctx, err, "Failed to store bars", map[string]interface{}{"symbol": symbol, "count": len(bars)})
		return nil, err
	}

	// Existing buckets keep their stored id, so resolve ids from the table.
	first, last := bars[0].OpenTime, bars[len(bars)-1].OpenTime
	stored, err := s.store.FindBars(ctx, ports.BarQuery{
		Symbol: symbol,
		From:   first,
		To:     s.cfg.BarInterval.Next(last),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reload stored bars for %s: %w", symbol, err)
	}
	byOpen := make(map[int64]domain.Bar, len(stored))
	for _, b := range stored {
		byOpen[b.OpenTime.UnixNano()] = b
	}
	resolved := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if sb, ok := byOpen[b.OpenTime.UnixNano()]; ok {
			resolved = append(resolved, sb)
		}
	}

	snap, ok := domain.LatestClosed(symbol, s.cfg.SourceName, s.cfg.BarInterval, resolved, s.now())
	if !ok {
		s.logger.Debug(ctx, "No closed bar yet, latest snapshot unchanged", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}
	if err := s.store.UpsertLatest(ctx, snap); err != nil {
		s.logger.Error(ctx, err, "Failed to update latest snapshot", map[string]interface{}{"symbol": symbol})
		return nil, err
	}
	s.logger.Info(ctx, "Stored bars", map[string]interface{}{
		"symbol":      symbol,
		"count":       len(bars),
		"latestClose": snap.LatestClose.Time,
		"active":      snap.IsActive(),
	})
	return &snap, nil
}

// Bars returns the bars selected by q.
func (s *BarService) Bars(ctx context.Context, q ports.BarQuery) ([]domain.Bar, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, fmt.Errorf("from %s must be before to %s: %w", q.From, q.To, ports.ErrInvalidRequest)
	}
	return s.store.FindBars(ctx, q)
}

// Latest returns the snapshot of symbol, or all snapshots when symbol is empty.
func (s *BarService) Latest(ctx context.Context, symbol string) ([]domain.LatestSnapshot, error) {
	if symbol == "" {
		return s.store.ListLatest(ctx)
	}
	snap, err := s.store.FindLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return []domain.LatestSnapshot{*snap}, nil
}

// Inactive lists symbols flagged inactive.
func (s *BarService) Inactive(ctx context.Context) ([]string, error) {
	return s.store.InactiveSymbols(ctx)
}

// Reinstate flags symbols active again, e.g. after a false delisting.
// Symbols without a snapshot are skipped and reported in the log.
func (s *BarService) Reinstate(ctx context.Context, symbols ...string) (int64, error) {
	if len(symbols) == 0 {
		return 0, fmt.Errorf("at least one symbol is required: %w", ports.ErrInvalidRequest)
	}
	status := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		status[sym] = true
	}

	n, err := s.store.SetActive(ctx, status)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to reinstate symbols", map[string]interface{}{"symbols": symbols})
		return 0, err
	}
	if int(n) < len(status) {
		s.logger.Warn(ctx, "Some symbols have no latest snapshot", map[string]interface{}{
			"requested": len(status),
			"updated":   n,
		})
	}
	s.logger.Info(ctx, "Symbols reinstated", map[string]interface{}{"count": n})
	return n, nil
}

// Export writes the bars selected by q to path in format and returns the row count.
func (s *BarService) Export(ctx context.Context, q ports.BarQuery, format, path string) (int, error) {
	write, err := export.WriterFor(format)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	bars, err := s.Bars(ctx, q)
	if err != nil {
		return 0, err
	}
	if err := write(bars, path); err != nil {
		s.logger.Error(ctx, err, "Export failed", map[string]interface{}{"path": path, "format": format})
		return 0, fmt.Errorf("failed to export bars to %s: %w", path, err)
	}
	s.logger.Info(ctx, "Bars exported", map[string]interface{}{"path": path, "format": format, "count": len(bars)})
	return len(bars), nil
}
