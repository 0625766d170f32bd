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

	"gridHedgeBot/internal/ports"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository implements ports.Store using SQLite.
type Repository struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and creates if needed) the database and applies the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/hedge_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, q: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS strategies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		position_side TEXT NOT NULL,
		amount_type TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		settings TEXT NOT NULL,
		status TEXT NOT NULL,
		status_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_strategies_status ON strategies (status, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_strategies_one_active ON strategies (symbol) WHERE status = 'ACTIVE'`,

	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		position_side TEXT NOT NULL,
		type TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		stop_price TEXT NOT NULL DEFAULT '0',
		callback_rate TEXT NOT NULL DEFAULT '0',
		quantity TEXT NOT NULL,
		leverage INTEGER NOT NULL DEFAULT 0,
		exchange_order_id INTEGER NULL,
		client_order_id TEXT NOT NULL,
		local_status TEXT NOT NULL,
		exchange_status TEXT NOT NULL DEFAULT '',
		avg_price TEXT NOT NULL DEFAULT '0',
		executed_qty TEXT NOT NULL DEFAULT '0',
		commission TEXT NOT NULL DEFAULT '0',
		commission_asset TEXT NOT NULL DEFAULT '',
		realized_pnl TEXT NOT NULL DEFAULT '0',
		last_trade_id INTEGER NOT NULL DEFAULT 0,
		order_number INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_exchange_id ON orders (symbol, exchange_order_id) WHERE exchange_order_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_client_id ON orders (client_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_strategy_type_status ON orders (strategy_id, type, local_status)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		position_side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		break_even_price TEXT NOT NULL,
		adjusted_break_even_price TEXT NOT NULL,
		status TEXT NOT NULL,
		pnl TEXT NOT NULL DEFAULT '0',
		activation_price TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_one_open ON positions (symbol, position_side) WHERE status != 'CLOSED'`,
	`CREATE INDEX IF NOT EXISTS idx_positions_strategy ON positions (strategy_id)`,

	`CREATE TABLE IF NOT EXISTS symbol_precision (
		symbol TEXT PRIMARY KEY,
		quantity_precision INTEGER NOT NULL,
		price_precision INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil && !r.inTx {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction. Nested calls join the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx ports.Store) error) (err error) {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txRepo := &Repository{db: r.db, q: tx, inTx: true, logger: r.logger}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	return nil
}

// mapWriteErr turns unique-constraint violations into ports.ErrDuplicateEntry.
func mapWriteErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %w", ports.ErrDuplicateEntry, err)
	}
	return err
}

func checkAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s ID %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s ID %d not found for update: %w", what, id, ports.ErrNotFound)
	}
	return nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
