// Package userstore implements C3's UserStore: get/upsert over a User
// record, with a Postgres-backed implementation grounded on the teacher's
// internal/db.PostgresDatabase (sql.Open("postgres", ...) via lib/pq) and an
// RWMutex-guarded in-memory implementation for tests and local development.
package userstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
)

// User is a provisioned account (§3).
type User struct {
	UserID         string
	HashedPassword string
	Disabled       bool
}

// Store is the UserStore contract (C3).
type Store interface {
	Get(userID string) (*User, error)
	Upsert(userID, hashedPassword string, disabled bool) error
	Exists(userID string) (bool, error)
}

// MemStore is an in-memory Store, used by tests and local/dev runs.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]*User)}
}

func (s *MemStore) Get(userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, &apierr.NotFoundError{Resource: "user", ID: userID}
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) Upsert(userID, hashedPassword string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = &User{UserID: userID, HashedPassword: hashedPassword, Disabled: disabled}
	return nil
}

func (s *MemStore) Exists(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

// PostgresStore is a Store backed by Postgres via lib/pq.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore opens a connection pool against dsn and prepares
// PostgresStore to read/write the named users table. It does not create
// the schema; see SetupSchema.
func NewPostgresStore(dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("userstore: ping database: %w", err)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// SetupSchema idempotently creates the users table if it does not already
// exist (a schema-migration-style helper used by dev bootstrap, not a full
// migration framework).
func (s *PostgresStore) SetupSchema() error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id TEXT PRIMARY KEY,
		hashed_password TEXT NOT NULL,
		disabled BOOLEAN NOT NULL DEFAULT FALSE
	)`, s.table)
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("userstore: create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(userID string) (*User, error) {
	query := fmt.Sprintf(`SELECT user_id, hashed_password, disabled FROM %s WHERE user_id = $1`, s.table)
	row := s.db.QueryRow(query, userID)

	var u User
	if err := row.Scan(&u.UserID, &u.HashedPassword, &u.Disabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, &apierr.NotFoundError{Resource: "user", ID: userID}
		}
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("userstore: get %s: %w", userID, err)}
	}
	return &u, nil
}

func (s *PostgresStore) Upsert(userID, hashedPassword string, disabled bool) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, hashed_password, disabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET hashed_password = EXCLUDED.hashed_password, disabled = EXCLUDED.disabled`, s.table)

	if _, err := s.db.Exec(query, userID, hashedPassword, disabled); err != nil {
		return &apierr.UpstreamError{Err: fmt.Errorf("userstore: upsert %s: %w", userID, err)}
	}
	return nil
}

func (s *PostgresStore) Exists(userID string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE user_id = $1`, s.table)
	row := s.db.QueryRow(query, userID)

	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, &apierr.UpstreamError{Err: fmt.Errorf("userstore: exists %s: %w", userID, err)}
	}
	return true, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// List returns up to size users starting at offset start, ordered by
// user_id, mirroring the teacher's db.Database.List pagination contract
// and backing the supplemented admin listing endpoint.
func (s *PostgresStore) List(start, size int) ([]*User, error) {
	query := fmt.Sprintf(`SELECT user_id, hashed_password, disabled FROM %s ORDER BY user_id LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.db.Query(query, size, start)
	if err != nil {
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("userstore: list: %w", err)}
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.HashedPassword, &u.Disabled); err != nil {
			return nil, &apierr.UpstreamError{Err: fmt.Errorf("userstore: scan row: %w", err)}
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("userstore: iterate rows: %w", err)}
	}
	return out, nil
}
