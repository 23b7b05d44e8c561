package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"quantumFlowBot/internal/ports"
)

// Repository implements ports.StateStore using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the database and makes sure the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	ctx := context.Background()
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/quantumflow.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		err = fmt.Errorf("%w: creating data directory %q: %v", ports.ErrDBConnection, filepath.Dir(dbPath), err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: opening %q: %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("%w: pinging %q: %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(ctx); err != nil {
		db.Close()
		cfg.Logger.Error(ctx, err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "SQLite state store ready", ports.Fields{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS risk_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		consecutive_losses INTEGER NOT NULL,
		recovery_mode TEXT NOT NULL,
		cool_off_until TEXT NULL,
		compound_level INTEGER NOT NULL,
		compound_profit REAL NOT NULL,
		counter_day TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_trade_counters (
		day TEXT NOT NULL,
		symbol TEXT NOT NULL,
		trades INTEGER NOT NULL,
		PRIMARY KEY (day, symbol)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: initializing schema: %v", ports.ErrQueryFailed, err)
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

const dayLayout = "2006-01-02"

// SaveState replaces the stored engine state and today's counters in one transaction.
// Counters of earlier days are dropped.
func (r *Repository) SaveState(ctx context.Context, st ports.PersistedState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	day := st.CounterDay.UTC().Format(dayLayout)
	const upsert = `
	INSERT INTO risk_state (id, consecutive_losses, recovery_mode, cool_off_until, compound_level, compound_profit, counter_day, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		consecutive_losses = excluded.consecutive_losses,
		recovery_mode = excluded.recovery_mode,
		cool_off_until = excluded.cool_off_until,
		compound_level = excluded.compound_level,
		compound_profit = excluded.compound_profit,
		counter_day = excluded.counter_day,
		updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert,
		st.ConsecutiveLosses, st.RecoveryMode, nullTime(st.CoolOffUntil),
		st.CompoundLevel, st.CompoundProfit, day, formatTime(st.UpdatedAt)); err != nil {
		return fmt.Errorf("%w: saving risk state: %v", ports.ErrUpdateFailed, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_trade_counters`); err != nil {
		return fmt.Errorf("%w: clearing counters: %v", ports.ErrUpdateFailed, err)
	}
	for symbol, n := range st.TradesToday {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_trade_counters (day, symbol, trades) VALUES (?, ?, ?)`, day, symbol, n); err != nil {
			return fmt.Errorf("%w: saving counter for %s: %v", ports.ErrUpdateFailed, symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

// LoadState returns the stored state, or nil, nil when nothing was saved yet.
func (r *Repository) LoadState(ctx context.Context) (*ports.PersistedState, error) {
	const query = `
	SELECT consecutive_losses, recovery_mode, cool_off_until, compound_level, compound_profit, counter_day, updated_at
	FROM risk_state WHERE id = 1`
	st, day, err := scanState(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading risk state: %v", ports.ErrQueryFailed, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT symbol, trades FROM daily_trade_counters WHERE day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("%w: loading counters: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	for rows.Next() {
		var symbol string
		var n int
		if err := rows.Scan(&symbol, &n); err != nil {
			return nil, fmt.Errorf("%w: scanning counter: %v", ports.ErrQueryFailed, err)
		}
		st.TradesToday[symbol] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating counters: %v", ports.ErrQueryFailed, err)
	}
	return st, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanState(s scanner) (*ports.PersistedState, string, error) {
	st := &ports.PersistedState{TradesToday: map[string]int{}}
	var coolOff sql.NullString
	var day, updatedAt string
	if err := s.Scan(&st.ConsecutiveLosses, &st.RecoveryMode, &coolOff,
		&st.CompoundLevel, &st.CompoundProfit, &day, &updatedAt); err != nil {
		return nil, "", err
	}

	var err error
	if st.CounterDay, err = time.Parse(dayLayout, day); err != nil {
		return nil, "", fmt.Errorf("parsing counter_day %q: %w", day, err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, "", fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	if coolOff.Valid {
		if st.CoolOffUntil, err = time.Parse(time.RFC3339Nano, coolOff.String); err != nil {
			return nil, "", fmt.Errorf("parsing cool_off_until %q: %w", coolOff.String, err)
		}
	}
	return st, day, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
