// Package db provides the pooled connection core over Postgres with the
// PostGIS and pgvector extensions, plus the query analyzer and the batch
// executor that sit directly on top of it.
//
// Rows cross the package boundary as opaque record maps; JSON columns are
// decoded exactly once, here. Identifier interpolation goes through the
// allow-list in ident.go; values always travel as bound parameters.
package db

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/sirupsen/logrus"
)

const (
	// acquireTimeout bounds how long a caller may block waiting for a
	// connection before the acquisition fails.
	acquireTimeout = 5 * time.Second

	// slowAcquireThreshold is the point past which an acquisition is logged
	// as a warning.
	slowAcquireThreshold = 100 * time.Millisecond

	keepaliveIdle     = 60 * time.Second
	keepaliveInterval = 10 * time.Second
	keepaliveProbes   = 3
)

// Config carries the pool bounds and the connection string.
type Config struct {
	URI      string
	MinConns int
	MaxConns int
}

// Executor is the querying surface shared by the pool core and open
// transactions. Repositories program against it so tests can substitute a
// fake without a live server.
type Executor interface {
	// Exec runs a statement and returns the number of rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a query and returns all rows as record maps.
	Query(ctx context.Context, sql string, args ...any) ([]Record, error)

	// QueryRow runs a query expected to return at most one row. A missing
	// row is (nil, nil), not an error.
	QueryRow(ctx context.Context, sql string, args ...any) (Record, error)
}

// TxRunner runs a function inside a single transaction.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, ex Executor) error) error
}

// Core is the pooled connection manager. It satisfies Executor and TxRunner.
type Core struct {
	pool     *pgxpool.Pool
	analyzer *Analyzer
	log      *logrus.Logger
}

// NewCore builds the pool from config. The analyzer may be nil; queries then
// run unobserved. Connection health is maintained with TCP keepalives (idle
// 60s, interval 10s, 3 probes); a connection failing its liveness check is
// discarded and recreated by pgxpool.
func NewCore(ctx context.Context, cfg Config, analyzer *Analyzer, log *logrus.Logger) (*Core, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database uri: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	dialer := &net.Dialer{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepaliveIdle,
			Interval: keepaliveInterval,
			Count:    keepaliveProbes,
		},
	}
	poolCfg.ConnConfig.DialFunc = dialer.DialContext

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Core{pool: pool, analyzer: analyzer, log: log}, nil
}

// Acquire checks a connection out of the pool, blocking up to 5 seconds.
// Callers must Release the returned connection on every path.
func (c *Core) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	start := time.Now()
	conn, err := c.pool.Acquire(acquireCtx)
	c.noteAcquire(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

func (c *Core) noteAcquire(elapsed time.Duration) {
	if elapsed > slowAcquireThreshold && c.log != nil {
		c.log.WithFields(logrus.Fields{
			"elapsed_ms": elapsed.Milliseconds(),
		}).Warn("slow connection acquisition")
	}
}

// Exec runs a statement on a pooled connection.
func (c *Core) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	start := time.Now()
	tag, err := c.pool.Exec(ctx, sql, args...)
	rows := int64(0)
	if err == nil {
		rows = tag.RowsAffected()
	}
	c.observe(sql, args, time.Since(start), rows, err)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return rows, nil
}

// Query runs a query on a pooled connection and collects every row into a
// record map keyed by column name.
func (c *Core) Query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	start := time.Now()
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		c.observe(sql, args, time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	records, err := pgx.CollectRows(rows, collectRecord)
	c.observe(sql, args, time.Since(start), int64(len(records)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}
	return records, nil
}

// QueryRow runs a query expected to return at most one row.
func (c *Core) QueryRow(ctx context.Context, sql string, args ...any) (Record, error) {
	records, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// WithinTransaction invokes fn with a transaction-scoped Executor on exactly
// one connection. The transaction commits when fn returns nil, rolls back on
// error or panic, and returns the connection to the pool on every path.
func (c *Core) WithinTransaction(ctx context.Context, fn func(ctx context.Context, ex Executor) error) error {
	conn, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		// Runs on error and panic paths alike; Rollback on a committed
		// transaction is a no-op error we ignore.
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, &txExecutor{tx: tx, core: c}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Stat exposes pool telemetry for the sampler.
func (c *Core) Stat() PoolStat {
	s := c.pool.Stat()
	return PoolStat{
		Active:           int64(s.AcquiredConns()),
		Idle:             int64(s.IdleConns()),
		Total:            int64(s.TotalConns()),
		EmptyAcquires:    s.EmptyAcquireCount(),
		CanceledAcquires: s.CanceledAcquireCount(),
		AcquireCount:     s.AcquireCount(),
		AcquireDuration:  s.AcquireDuration(),
	}
}

// Analyzer returns the attached query analyzer, which may be nil.
func (c *Core) Analyzer() *Analyzer { return c.analyzer }

// Close drains and closes the pool.
func (c *Core) Close() {
	c.pool.Close()
}

func (c *Core) observe(sql string, args []any, elapsed time.Duration, rows int64, err error) {
	if c.analyzer != nil {
		c.analyzer.Observe(sql, args, elapsed, rows, err)
	}
}

// txExecutor adapts an open pgx.Tx to the Executor surface so repositories
// and the batch executor run the same code inside and outside transactions.
type txExecutor struct {
	tx   pgx.Tx
	core *Core
}

func (t *txExecutor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	start := time.Now()
	tag, err := t.tx.Exec(ctx, sql, args...)
	rows := int64(0)
	if err == nil {
		rows = tag.RowsAffected()
	}
	t.core.observe(sql, args, time.Since(start), rows, err)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return rows, nil
}

func (t *txExecutor) Query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	start := time.Now()
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		t.core.observe(sql, args, time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	records, err := pgx.CollectRows(rows, collectRecord)
	t.core.observe(sql, args, time.Since(start), int64(len(records)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}
	return records, nil
}

func (t *txExecutor) QueryRow(ctx context.Context, sql string, args ...any) (Record, error) {
	records, err := t.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func collectRecord(row pgx.CollectableRow) (Record, error) {
	return pgx.RowToMap(row)
}
