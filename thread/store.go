// Package thread provides checkpoint stores for conversation thread state.
// A store persists full snapshots keyed by thread id and serializes access
// per thread: at most one supervisor run may hold a thread at a time.
package thread

import (
	"fmt"
	"sync"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// InMemoryStore keeps thread state in process memory. Snapshots are deep
// copies both on Save and Load so callers never alias the stored record.
// Suitable for tests and single-process deployments without durability needs.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*core.ThreadState
	locks   map[string]*sync.Mutex
}

// NewInMemoryStore creates an empty in-memory thread store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string]*core.ThreadState),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Load returns a deep copy of the thread's last checkpoint, or
// core.ErrThreadNotFound.
func (s *InMemoryStore) Load(threadID string) (*core.ThreadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, core.ErrThreadNotFound)
	}
	return state.Clone(), nil
}

// Save checkpoints the full state snapshot, replacing any previous one.
func (s *InMemoryStore) Save(state *core.ThreadState) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("thread store: state must carry a thread id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[state.ThreadID] = state.Clone()
	return nil
}

// Delete removes the thread's checkpoint. Deleting an unknown thread is a
// no-op.
func (s *InMemoryStore) Delete(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}

// Acquire takes the thread's exclusive lock without blocking. A second
// acquire before release fails with core.ErrThreadBusy.
func (s *InMemoryStore) Acquire(threadID string) (func(), error) {
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

var _ core.ThreadStore = (*InMemoryStore)(nil)
