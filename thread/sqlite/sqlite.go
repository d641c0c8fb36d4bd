// Package sqlite provides a durable thread store backed by an embedded
// SQLite database. Checkpoints survive process restarts, which is what makes
// crash-resume of supervisor runs possible.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store persists thread state as JSON rows in SQLite. Thread locks are held
// in process memory: the store assumes a single engine instance owns the
// database file, the same assumption SQLite itself makes about writers.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (and if needed creates) the database at path and prepares the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite thread store: %w", err)
	}
	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent checkpoints.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare thread schema: %w", err)
	}

	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the thread's last checkpoint, or core.ErrThreadNotFound.
func (s *Store) Load(threadID string) (*core.ThreadState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM threads WHERE thread_id = ?`, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %q: %w", threadID, core.ErrThreadNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %q: %w", threadID, err)
	}

	var state core.ThreadState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode thread %q: %w", threadID, err)
	}
	return &state, nil
}

// Save checkpoints the full state snapshot, replacing any previous row.
func (s *Store) Save(state *core.ThreadState) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("thread store: state must carry a thread id")
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode thread %q: %w", state.ThreadID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO threads (thread_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.ThreadID, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save thread %q: %w", state.ThreadID, err)
	}
	return nil
}

// Delete removes the thread's row. Deleting an unknown thread is a no-op.
func (s *Store) Delete(threadID string) error {
	if _, err := s.db.Exec(`DELETE FROM threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread %q: %w", threadID, err)
	}
	return nil
}

// Acquire takes the thread's exclusive in-process lock without blocking. A
// second acquire before release fails with core.ErrThreadBusy.
func (s *Store) Acquire(threadID string) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	s.mu.Unlock()

	if !lock.TryLock() {
		return nil, fmt.Errorf("thread %q: %w", threadID, core.ErrThreadBusy)
	}
	return lock.Unlock, nil
}

var _ core.ThreadStore = (*Store)(nil)
