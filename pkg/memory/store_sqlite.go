package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical persistent memory storage.
type SQLiteStore struct {
	db *sql.DB

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLiteStore creates/opens the memory database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. Use one shared connection to avoid writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS memory_docs (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY (user_id, kind)
		);`,
		`CREATE INDEX IF NOT EXISTS memory_docs_updated_idx ON memory_docs(updated_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory db: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) Upsert(ctx context.Context, userID string, kind Kind, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory_docs (id, user_id, kind, payload_json, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, kind) DO UPDATE SET
	payload_json = excluded.payload_json,
	updated_at_ms = excluded.updated_at_ms`,
		s.newID(), userID, string(kind), string(payload), now, now)
	if err != nil {
		return fmt.Errorf("upsert %s memory for %s: %w", kind, userID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string, kind Kind) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT payload_json FROM memory_docs WHERE user_id = ? AND kind = ?`, userID, string(kind))

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s memory for %s: %w", kind, userID, err)
	}
	return []byte(payload), true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string, kind Kind) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM memory_docs WHERE user_id = ? AND kind = ?`, userID, string(kind))
	if err != nil {
		return false, fmt.Errorf("delete %s memory for %s: %w", kind, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s memory for %s: %w", kind, userID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT user_id FROM memory_docs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list memory users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan memory user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memory users: %w", err)
	}
	return users, nil
}
