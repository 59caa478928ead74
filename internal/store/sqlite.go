package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	*queries
	db *sqlx.DB
}

// queries runs record operations against either the database or a
// transaction.
type queries struct {
	ext sqlx.ExtContext
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: the process is a single sequential writer, and
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode so read-only commands in other processes see
	// consistent snapshots while a writer runs.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{queries: &queries{ext: db}, db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InTx runs fn inside a transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// AcquireWriterLease claims the single writer lease row. Expired leases
// left behind by crashed processes are cleared first.
func (s *SQLiteStore) AcquireWriterLease(
	ctx context.Context,
	command string,
	ttl time.Duration,
) (string, error) {
	owner := uuid.New().String()
	now := time.Now().UTC()

	err := s.InTx(ctx, func(q Querier) error {
		ext := q.(*queries).ext

		if _, err := ext.ExecContext(ctx,
			"DELETE FROM writer_lease WHERE expires_at <= ?", now.Unix(),
		); err != nil {
			return fmt.Errorf("clearing expired lease: %w", err)
		}

		res, err := ext.ExecContext(ctx, `
			INSERT INTO writer_lease (id, owner, command, acquired_at, expires_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			owner, command, now.Unix(), now.Add(ttl).Unix(),
		)
		if err != nil {
			return fmt.Errorf("inserting lease: %w", err)
		}

		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrStoreLocked
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return owner, nil
}

// ReleaseWriterLease removes the lease if owner still holds it.
func (s *SQLiteStore) ReleaseWriterLease(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM writer_lease WHERE owner = ?", owner)
	if err != nil {
		return fmt.Errorf("releasing writer lease: %w", err)
	}
	return nil
}

// CurrentLease returns the unexpired writer lease, if any.
func (s *SQLiteStore) CurrentLease(ctx context.Context) (*Lease, error) {
	var row struct {
		Owner      string `db:"owner"`
		Command    string `db:"command"`
		AcquiredAt int64  `db:"acquired_at"`
		ExpiresAt  int64  `db:"expires_at"`
	}

	err := s.db.GetContext(ctx, &row, `
		SELECT owner, command, acquired_at, expires_at
		FROM writer_lease WHERE id = 1 AND expires_at > ?`,
		time.Now().UTC().Unix(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading writer lease: %w", err)
	}

	return &Lease{
		Owner:      row.Owner,
		Command:    row.Command,
		AcquiredAt: time.Unix(row.AcquiredAt, 0).UTC(),
		ExpiresAt:  time.Unix(row.ExpiresAt, 0).UTC(),
	}, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// utcPtr normalizes an optional timestamp for storage.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
