// Package database centralises sqlx connection helpers.  The driver is
// go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	Open(ctx, dsn, opts)   – pool with retries; Pings before returning.
//	WithTx(ctx, db, fn)    – run fn inside a transaction, rolling back on
//	                         error or panic.
//	WithPassword(dsn, pw)  – inject a secret into a DSN template.
//	IsDuplicate(err)       – recognise MySQL error 1062.
//
// Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes the pool and the bootstrap retry loop.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// DefaultOptions returns 15 max open, 5 idle, a 30-minute lifetime, and two
// retries half a second apart.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    15,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Retries:         2,
		RetryBackoff:    500 * time.Millisecond,
	}
}

// Open returns a pinged *sqlx.DB.  A failed Ping is retried opts.Retries
// times so a database that is still starting does not abort boot.
func Open(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	var pingErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			return db, nil
		}
		if attempt == opts.Retries {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(opts.RetryBackoff):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("ping database: %w", pingErr)
}

// WithPassword parses dsn, sets its password, forces parseTime, and returns
// the formatted DSN.  An empty password leaves the DSN's own value intact.
func WithPassword(dsn, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// WithTx runs fn inside a transaction.  The transaction commits when fn
// returns nil and rolls back otherwise, including when fn panics.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsDuplicate reports whether err is a MySQL duplicate-key violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
