// Package pg implements store.Store backed by Postgres (managed mode).
// Schema is owned by golang-migrate; see migrations/.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coursehub/modhub/internal/store"
)

// Store implements store.Store backed by a Postgres database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// OpenDB opens a Postgres connection pool via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// New wraps an already-open database. Migrations must have been applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the DSN and returns a ready store.
func Open(dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation matches Postgres error class 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
