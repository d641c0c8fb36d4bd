package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	state := core.NewThreadState("t-1")
	state.AppendMessage("user", "what is rank fusion?")
	state.TaskStack = []core.TaskSpec{{ID: "task-1", Description: "research", Worker: core.WorkerResearch}}
	state.Phase = core.PhaseDispatch
	require.NoError(t, s.Save(state))

	loaded, err := s.Load("t-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseDispatch, loaded.Phase)
	require.Len(t, loaded.TaskStack, 1)
	assert.Equal(t, "task-1", loaded.TaskStack[0].ID)
	assert.Equal(t, "what is rank fusion?", loaded.LastMessage().Content)
}

func TestStore_LoadUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("missing")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
}

func TestStore_SaveReplacesPreviousCheckpoint(t *testing.T) {
	s := openTestStore(t)

	state := core.NewThreadState("t-1")
	require.NoError(t, s.Save(state))

	state.Phase = core.PhaseDone
	state.AppendMessage("assistant", "done")
	require.NoError(t, s.Save(state))

	loaded, err := s.Load("t-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseDone, loaded.Phase)
	assert.Len(t, loaded.Messages, 1)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.db")

	s, err := Open(path)
	require.NoError(t, err)

	state := core.NewThreadState("t-1")
	state.Phase = core.PhaseAwaitingWorker
	state.IterationCount = 2
	require.NoError(t, s.Save(state))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load("t-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseAwaitingWorker, loaded.Phase)
	assert.Equal(t, 2, loaded.IterationCount)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(core.NewThreadState("t-1")))
	require.NoError(t, s.Delete("t-1"))

	_, err := s.Load("t-1")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)

	assert.NoError(t, s.Delete("never-existed"))
}

func TestStore_AcquireIsExclusive(t *testing.T) {
	s := openTestStore(t)

	release, err := s.Acquire("t-1")
	require.NoError(t, err)

	_, err = s.Acquire("t-1")
	assert.ErrorIs(t, err, core.ErrThreadBusy)

	release()

	release2, err := s.Acquire("t-1")
	require.NoError(t, err)
	release2()
}
