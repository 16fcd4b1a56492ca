// Package store provides Postgres-backed persistence for organizations,
// auto-reply rules, business hours and the trigger log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidStatus is returned when a lifecycle transition is not
	// allowed from the rule's current status.
	ErrInvalidStatus = errors.New("invalid status transition")
)

// ValidationError rejects malformed caller input. HTTP handlers map it
// to a 400 so clients can tell bad requests apart from outages.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

var pool struct {
	once sync.Once
	db   *sql.DB
	err  error
}

// DB returns the process-wide connection pool, opened on first use
// from DATABASE_URL.
func DB() (*sql.DB, error) {
	pool.once.Do(func() {
		pool.db, pool.err = openFromEnv()
	})
	return pool.db, pool.err
}

func openFromEnv() (*sql.DB, error) {
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx, letting
// store methods run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// requireUUID validates caller-supplied identifiers before they reach
// SQL. The error names the offending field.
func requireUUID(value, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !uuidRegex.MatchString(trimmed) {
		return "", validationErrorf("invalid %s", field)
	}
	return trimmed, nil
}
