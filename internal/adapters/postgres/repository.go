package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// Repository implements ports.Store on PostgreSQL, the production backend.
type Repository struct {
	db          *sql.DB
	logger      ports.Logger
	schema      string
	barTable    string // schema-qualified, quoted
	latestTable string // schema-qualified, quoted
	sequence    string // schema-qualified, quoted
	seqName     string // schema-qualified, for nextval()
}

// Config holds configuration for the PostgreSQL repository.
type Config struct {
	DSN             string // e.g. "host=localhost port=5432 user=u password=p dbname=markets sslmode=disable"
	Schema          string // Defaults to alpaca
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          ports.Logger
	BarInterval     domain.Interval // Defaults to 1h
	LatestInterval  domain.Interval // Defaults to 1d
}

// NewRepository connects to PostgreSQL. Call Migrate to create the schema objects.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for PostgreSQL repository: %w", ports.ErrConfigurationError)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is empty: %w", ports.ErrConfigurationError)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w: %w", ports.ErrDBConnection, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w: %w", ports.ErrDBConnection, err)
	}

	repo := newRepository(db, cfg)
	cfg.Logger.Info(ctx, "PostgreSQL connection established", map[string]interface{}{
		"schema": repo.schema, "barTable": repo.barTable, "latestTable": repo.latestTable,
	})
	return repo, nil
}

func newRepository(db *sql.DB, cfg Config) *Repository {
	schema := cfg.Schema
	if schema == "" {
		schema = "alpaca"
	}
	if cfg.BarInterval == (domain.Interval{}) {
		cfg.BarInterval = domain.MustParseInterval("1h")
	}
	if cfg.LatestInterval == (domain.Interval{}) {
		cfg.LatestInterval = domain.MustParseInterval("1d")
	}
	qualify := func(name string) string {
		return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
	}
	seq := cfg.BarInterval.BarTable() + "_id_seq"
	return &Repository{
		db:          db,
		logger:      cfg.Logger,
		schema:      schema,
		barTable:    qualify(cfg.BarInterval.BarTable()),
		latestTable: qualify(cfg.LatestInterval.LatestTable()),
		sequence:    qualify(seq),
		seqName:     schema + "." + seq,
	}
}

// Migrate creates the schema, tables and id sequence if they don't exist.
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(r.schema)),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			open_time TIMESTAMP NOT NULL,
			open_price DECIMAL(24,8),
			high_price DECIMAL(24,8),
			low_price DECIMAL(24,8),
			close_price DECIMAL(24,8),
			volume_stock DECIMAL(24,8),
			volume_dollar DECIMAL(24,8),
			vwap DECIMAL(24,8),
			trades INTEGER,
			UNIQUE (symbol, open_time)
		)`, r.barTable),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol VARCHAR(20) PRIMARY KEY,
			id BIGINT,
			latest_close TIMESTAMP,
			active BOOLEAN,
			source VARCHAR(20)
		)`, r.latestTable),
		fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s`, r.sequence),
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema initialization: %w", err)
		}
	}
	// An existing table may already hold ids the new sequence would repeat.
	if err := r.withTx(ctx, func(tx *sql.Tx) error { return r.syncSequence(ctx, tx) }); err != nil {
		return err
	}
	r.logger.Info(ctx, "Database schema initialized/verified", map[string]interface{}{"schema": r.schema})
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing PostgreSQL connection pool")
		return r.db.Close()
	}
	return nil
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrDBConnection, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn(ctx, "Rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError translates PostgreSQL errors into the port errors while keeping
// the driver error in the chain.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "unique_violation":
		if strings.HasSuffix(pqErr.Constraint, "_pkey") {
			return fmt.Errorf("%w: %w", ports.ErrPrimaryKeyViolation, err)
		}
		return fmt.Errorf("%w: %w", ports.ErrUniqueViolation, err)
	case "not_null_violation":
		return fmt.Errorf("%w: %w", ports.ErrNotNullViolation, err)
	case "numeric_value_out_of_range":
		return fmt.Errorf("%w: %w", ports.ErrNumericOverflow, err)
	case "string_data_right_truncation":
		return fmt.Errorf("%w: %w", ports.ErrValueTooLong, err)
	}
	return err
}

// placeholders renders rows of positional parameters: ($1, $2), ($3, $4) ...
func placeholders(rows, cols int) string {
	var sb strings.Builder
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// chunks splits n rows into batches that stay under the protocol's 65535 parameter limit.
func chunks(n, cols int) [][2]int {
	size := 65535 / cols
	if size > 1000 {
		size = 1000
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
