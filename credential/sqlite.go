package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (scope, key)
)`

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
	fieldProfile = "profile"
)

// SQLiteStore persists the record in a local SQLite database so a session survives
// process restarts.
type SQLiteStore struct {
	db    *sql.DB
	scope string
}

// OpenSQLiteStore opens (or creates) the database at path and prepares the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(path, scope string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if scope == "" {
		scope = "default"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create credential directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return &SQLiteStore{db: db, scope: scope}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials WHERE scope = ?`, s.scope)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var rec Record
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		switch key {
		case fieldAccess:
			rec.Pair.AccessToken = string(value)
		case fieldRefresh:
			rec.Pair.RefreshToken = string(value)
		case fieldProfile:
			rec.Profile = value
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.Pair.Empty() {
		return Record{}, ErrNotFound
	}
	if !rec.Pair.Complete() {
		if err := s.Clear(ctx); err != nil {
			return Record{}, err
		}
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `INSERT INTO credentials (scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value`

	if _, err := tx.ExecContext(ctx, upsert, s.scope, fieldAccess, []byte(rec.Pair.AccessToken)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, upsert, s.scope, fieldRefresh, []byte(rec.Pair.RefreshToken)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(rec.Profile) > 0 {
		if _, err := tx.ExecContext(ctx, upsert, s.scope, fieldProfile, rec.Profile); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE scope = ? AND key = ?`, s.scope, fieldProfile); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE scope = ?`, s.scope); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
