package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// Repository implements ports.Store on top of a local SQLite database.
type Repository struct {
	db          *sql.DB
	logger      ports.Logger
	barTable    string
	latestTable string
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath         string
	Logger         ports.Logger
	BarInterval    domain.Interval // Defaults to 1h
	LatestInterval domain.Interval // Defaults to 1d
}

// NewRepository opens (and creates, if needed) the database and its tables.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository: %w", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/spotstore.db"
	}
	if cfg.BarInterval == (domain.Interval{}) {
		cfg.BarInterval = domain.MustParseInterval("1h")
	}
	if cfg.LatestInterval == (domain.Interval{}) {
		cfg.LatestInterval = domain.MustParseInterval("1d")
	}
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer at a time; SQLite serialises writes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(ctx, "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{
		db:          db,
		logger:      cfg.Logger,
		barTable:    cfg.BarInterval.BarTable(),
		latestTable: cfg.LatestInterval.LatestTable(),
	}

	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "Database schema initialized/verified", map[string]interface{}{
		"barTable": repo.barTable, "latestTable": repo.latestTable,
	})

	return repo, nil
}

// Migrate creates the bar, snapshot and id sequence tables if they don't exist.
// Fixed-point columns are TEXT: SQLite's NUMERIC affinity would coerce them to
// REAL and lose digits, so values are stored in their exact decimal form.
func (r *Repository) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGINT NOT NULL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL CHECK (length(symbol) <= 20),
		open_time TIMESTAMP NOT NULL,
		open_price TEXT,    -- DECIMAL(24,8)
		high_price TEXT,    -- DECIMAL(24,8)
		low_price TEXT,     -- DECIMAL(24,8)
		close_price TEXT,   -- DECIMAL(24,8)
		volume_stock TEXT,  -- DECIMAL(24,8)
		volume_dollar TEXT, -- DECIMAL(24,8)
		vwap TEXT,          -- DECIMAL(24,8)
		trades INTEGER,
		UNIQUE (symbol, open_time)
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		symbol VARCHAR(20) NOT NULL PRIMARY KEY CHECK (length(symbol) <= 20),
		id BIGINT,
		latest_close TIMESTAMP,
		active BOOLEAN,
		source VARCHAR(20) CHECK (length(source) <= 20)
	);

	CREATE TABLE IF NOT EXISTS id_sequences (
		name TEXT NOT NULL PRIMARY KEY,
		last_value INTEGER NOT NULL
	);
	`, r.barTable, r.latestTable)

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when fn fails.
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

// mapError translates SQLite constraint failures into the port errors while
// keeping the driver error in the chain.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", ports.ErrPrimaryKeyViolation, err)
	case sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %w", ports.ErrUniqueViolation, err)
	case sqlite3.ErrConstraintNotNull:
		return fmt.Errorf("%w: %w", ports.ErrNotNullViolation, err)
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %w", ports.ErrValueTooLong, err)
	}
	return err
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
