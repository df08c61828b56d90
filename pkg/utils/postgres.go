package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPoolConfig sizes the database/sql pool. Zero fields take the
// values of DefaultPostgresPool.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultPostgresPool suits a single API replica; permission lookups are
// short point reads.
var DefaultPostgresPool = PostgresPoolConfig{
	MaxOpenConns:    20,
	MaxIdleConns:    10,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
	PingTimeout:     5 * time.Second,
}

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	d := DefaultPostgresPool
	if c.MaxOpenConns > 0 {
		d.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		d.MaxIdleConns = c.MaxIdleConns
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if c.ConnMaxLifetime > 0 {
		d.ConnMaxLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		d.ConnMaxIdleTime = c.ConnMaxIdleTime
	}
	if c.PingTimeout > 0 {
		d.PingTimeout = c.PingTimeout
	}
	return d
}

// OpenPostgres opens a pool on driverName ("pgx" for the pgx stdlib driver)
// and pings it once. dsn carries credentials and is never included in errors.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := PingPostgres(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PingPostgres bounds a liveness ping by timeout. It backs /readyz.
func PingPostgres(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on error or panic; a panic is re-raised after the rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	committed = true
	return nil
}

// ApplySchema runs idempotent DDL in one transaction. Outside production the
// API bootstraps its own tables this way.
func ApplySchema(ctx context.Context, db *sql.DB, stmts ...string) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("postgres: schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}
