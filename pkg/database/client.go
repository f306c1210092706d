// Copyright 2025 Certen Protocol
//
// Package database provides the shared Postgres connection pool,
// health check, migration runner, and transaction helpers used by
// pkg/sortitiondb, pkg/burnchaindb, and pkg/hostchaindb. Each store
// brings its own embedded migration filesystem; this package only
// knows how to walk and apply whichever one it's given.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Client represents a database client with connection pooling.
type Client struct {
	db     *sql.DB
	logger cmtlog.Logger
}

// Options configures a new Client.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	Logger          cmtlog.Logger
}

// NewClient opens a pooled connection to a Postgres database and
// verifies it with a ping.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to database", "max_open_conns", maxOpen, "max_idle_conns", maxIdle)

	return &Client{db: db, logger: logger}, nil
}

// DB returns the underlying *sql.DB for direct access.
func (c *Client) DB() *sql.DB { return c.db }

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Info("closing database connection")
	return c.db.Close()
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// ExecContext executes a query without returning rows.
func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (c *Client) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// HealthStatus reports pool statistics and reachability.
type HealthStatus struct {
	Healthy            bool
	Error              string
	OpenConnections    int
	InUse              int
	Idle               int
	MaxOpenConnections int
	CheckedAt          time.Time
}

// Health returns the current health of the connection pool.
func (c *Client) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{CheckedAt: time.Now()}
	if err := c.db.PingContext(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	stats := c.db.Stats()
	status.Healthy = true
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle
	status.MaxOpenConnections = stats.MaxOpenConnections
	return status
}

// ============================================================================
// MIGRATION SUPPORT
// ============================================================================

// Migration is one embedded .sql file.
type Migration struct {
	Version  string
	Filename string
	SQL      string
}

// MigrateUp applies every migration embedded in migrationsFS under dir
// that has not already been recorded in schema_migrations.
func (c *Client) MigrateUp(ctx context.Context, migrationsFS fs.FS, dir string) error {
	migrations, err := loadMigrations(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("get applied migrations: %w", err)
		}
		applied = map[string]bool{}
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		c.logger.Info("applying migration", "version", m.Version)
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func loadMigrations(migrationsFS fs.FS, dir string) ([]Migration, error) {
	var migrations []Migration
	err := fs.WalkDir(migrationsFS, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		version := strings.TrimSuffix(d.Name(), ".sql")
		migrations = append(migrations, Migration{Version: version, Filename: d.Name(), SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m Migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("execute migration sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.Version); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// ============================================================================
// TRANSACTION SUPPORT
// ============================================================================

// Tx wraps a *sql.Tx. In a reorg pass the coordinator opens at most one
// Tx, on the host-chain store, for forgetting orphan status; the
// sortition store's reorg writes run as separate statements outside any
// Tx. Callers open one Tx per logical unit of work and commit or roll it
// back explicitly.
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new transaction.
func (c *Client) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls back the transaction. Calling it after Commit is a
// harmless no-op per database/sql semantics.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Raw returns the underlying *sql.Tx for direct query building.
func (t *Tx) Raw() *sql.Tx { return t.tx }
