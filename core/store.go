package core

// ThreadStore persists per-thread checkpoints keyed by thread id.
//
// Contract:
//   - Load returns a clone; mutating it never affects the persisted record.
//   - Save persists a clone of the given state.
//   - Acquire implements the single-writer-per-thread discipline: it either
//     grants the per-thread lock immediately or fails with ErrThreadBusy.
//     It never blocks. The returned release function must be called exactly
//     once. Locks are per-thread, never global: distinct threads progress
//     independently.
type ThreadStore interface {
	Load(threadID string) (*ThreadState, error)
	Save(state *ThreadState) error
	Delete(threadID string) error
	Acquire(threadID string) (release func(), err error)
}
