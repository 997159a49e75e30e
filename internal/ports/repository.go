package ports

import (
	"context"
	"time"

	"spotstore/internal/domain"
)

// BarQuery selects a range of bars. Zero values leave a bound open.
type BarQuery struct {
	Symbol string    // Exact symbol, empty for all symbols
	From   time.Time // Inclusive lower bound on open_time
	To     time.Time // Exclusive upper bound on open_time
	Limit  int       // Maximum rows, 0 for no limit
}

// BarRepository defines the interface for storing and retrieving price bars.
type BarRepository interface {
	// InsertBars writes new bars in one transaction. A duplicate (symbol, open_time)
	// fails with ErrUniqueViolation, a duplicate id with ErrPrimaryKeyViolation and a
	// missing symbol or open_time with ErrNotNullViolation. Nothing is written on error.
	InsertBars(ctx context.Context, bars ...domain.Bar) error
	// UpsertBars merges bars on (symbol, open_time), overwriting every value column.
	// An existing row keeps its id.
	UpsertBars(ctx context.Context, bars ...domain.Bar) error
	// FindBars returns bars matching q ordered by symbol, then open_time.
	FindBars(ctx context.Context, q BarQuery) ([]domain.Bar, error)
	// FindBarByID retrieves a bar by id, or ErrNotFound.
	FindBarByID(ctx context.Context, id int64) (*domain.Bar, error)
	// NextIDs reserves n unused bar ids in ascending order.
	NextIDs(ctx context.Context, n int) ([]int64, error)
}

// LatestRepository defines the interface for the per-symbol latest snapshots.
type LatestRepository interface {
	// InsertLatest writes new snapshots; an existing symbol fails with ErrPrimaryKeyViolation.
	InsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error
	// UpsertLatest creates or replaces the snapshot of each symbol.
	UpsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error
	// FindLatest retrieves the snapshot for symbol, or ErrNotFound.
	FindLatest(ctx context.Context, symbol string) (*domain.LatestSnapshot, error)
	// ListLatest retrieves every snapshot ordered by symbol.
	ListLatest(ctx context.Context) ([]domain.LatestSnapshot, error)
	// InactiveSymbols lists symbols whose snapshot is flagged inactive.
	InactiveSymbols(ctx context.Context) ([]string, error)
	// SetActive updates only the active flag of existing snapshots and returns
	// the number of rows changed. Unknown symbols are ignored.
	SetActive(ctx context.Context, status map[string]bool) (int64, error)
}

// Store is a complete bar store backend.
type Store interface {
	BarRepository
	LatestRepository
	// Migrate creates the schema objects if they do not exist.
	Migrate(ctx context.Context) error
	Close() error
}
