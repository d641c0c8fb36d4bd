package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/fanout"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/fusion"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/internal/testutil"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/retrieval"
)

func researchOver(retrievers []core.Retriever, optFns ...func(o *ResearchOptions)) *ResearchWorker {
	return NewResearchWorker(fanout.New(retrievers), fusion.New(), optFns...)
}

func TestRegistry_ResolvesByKind(t *testing.T) {
	research := researchOver([]core.Retriever{testutil.NewScriptedRetriever(core.SourceVector)})
	r := NewRegistry(research)

	w, err := r.For(core.WorkerResearch)
	require.NoError(t, err)
	assert.Equal(t, core.WorkerResearch, w.Kind())
}

func TestRegistry_EmptyKindDefaultsToResearch(t *testing.T) {
	research := researchOver([]core.Retriever{testutil.NewScriptedRetriever(core.SourceVector)})
	r := NewRegistry(research)

	w, err := r.For("")
	require.NoError(t, err)
	assert.Equal(t, core.WorkerResearch, w.Kind())
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.For("janitor")
	assert.ErrorIs(t, err, core.ErrUnknownWorker)
}

func TestResearchWorker_ExtractiveDraftWithCitations(t *testing.T) {
	w := researchOver([]core.Retriever{
		testutil.NewScriptedRetriever(core.SourceVector,
			testutil.Item("v1", core.SourceVector, "reciprocal rank fusion combines rankings", 0.9),
			testutil.Item("v2", core.SourceVector, "vector stores index embeddings", 0.6),
		),
		testutil.NewScriptedRetriever(core.SourceGraph,
			testutil.Item("g1", core.SourceGraph, "fusion relates to ranking", 0.8),
		),
	})

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "task-1", Description: "what is rank fusion?"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, core.ResultOK, res.Status)
	assert.NotEmpty(t, res.Draft)
	assert.NotEmpty(t, res.Citations)
	assert.Subset(t, res.ContextIDs, res.Citations)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestResearchWorker_DegradedSourceDegradesResult(t *testing.T) {
	failing := testutil.NewScriptedRetriever(core.SourceWeb)
	failing.Err = errors.New("upstream 500")

	w := researchOver([]core.Retriever{
		testutil.NewScriptedRetriever(core.SourceVector,
			testutil.Item("v1", core.SourceVector, "some context", 0.9),
		),
		failing,
	})

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "task-1", Description: "q"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.ResultDegraded, res.Status)
}

func TestResearchWorker_GeneratorDrafts(t *testing.T) {
	gen := model.NewMockGenerator("synthesized answer")

	w := researchOver([]core.Retriever{
		testutil.NewScriptedRetriever(core.SourceVector,
			testutil.Item("v1", core.SourceVector, "some context", 0.9),
		),
	}, func(o *ResearchOptions) { o.Generator = gen })

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "task-1", Description: "q"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", res.Draft)
	assert.Equal(t, core.ResultOK, res.Status)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", errors.New("model unavailable")
}
func (failingGenerator) Info() model.Info { return model.Info{Name: "failing", Provider: "test"} }

func TestResearchWorker_GenerationFailureFallsBackExtractive(t *testing.T) {
	w := researchOver([]core.Retriever{
		testutil.NewScriptedRetriever(core.SourceVector,
			testutil.Item("v1", core.SourceVector, "the only passage", 0.9),
		),
	}, func(o *ResearchOptions) { o.Generator = failingGenerator{} })

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "task-1", Description: "q"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "the only passage", res.Draft)
	assert.Equal(t, core.ResultDegraded, res.Status)
}

func TestResearchWorker_SearchFailurePropagates(t *testing.T) {
	failing := testutil.NewScriptedRetriever(core.SourceVector)
	failing.Err = errors.New("down")

	w := researchOver([]core.Retriever{failing})

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "task-1", Description: "q"}, nil)
	assert.ErrorIs(t, err, core.ErrNoSourcesAvailable)
	assert.Equal(t, core.ResultFailed, res.Status)
}

func TestGraphMaintenanceWorker_ProjectsFindings(t *testing.T) {
	store := retrieval.NewInMemoryGraphStore()
	w := NewGraphMaintenanceWorker(retrieval.NewGraphAdapter(store), nil)

	snapshot := core.NewThreadState("t-1")
	snapshot.AppendMessage("user", "compare fusion strategies")
	snapshot.Results = []core.WorkerResult{
		{TaskID: "task-1", Draft: "weighted fusion beats plain interleaving", Confidence: 0.9, Status: core.ResultOK},
		{TaskID: "task-2", Status: core.ResultFailed},
	}

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "maint-1", Worker: core.WorkerGraphMaintenance}, snapshot)
	require.NoError(t, err)
	assert.Equal(t, core.ResultOK, res.Status)
	assert.Contains(t, res.Draft, "1 findings")

	// The projected finding is reachable by traversal.
	hits, err := store.Traverse(context.Background(), "weighted fusion", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestMemoryMaintenanceWorker_PersistsFindings(t *testing.T) {
	service := retrieval.NewInMemoryMemoryService()
	w := NewMemoryMaintenanceWorker(retrieval.NewMemoryAdapter(service), nil)

	snapshot := core.NewThreadState("t-1")
	snapshot.Results = []core.WorkerResult{
		{TaskID: "task-1", Draft: "fusion weights are tunable per source", Confidence: 0.8, Status: core.ResultOK},
	}

	res, err := w.Execute(context.Background(), core.TaskSpec{ID: "maint-1", Worker: core.WorkerMemoryMaintenance}, snapshot)
	require.NoError(t, err)
	assert.Equal(t, core.ResultOK, res.Status)

	hits, err := service.Search(context.Background(), "fusion weights", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "finding:task-1", hits[0].ID)
}
