package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Retriever = (*VectorAdapter)(nil)
	_ core.Retriever = (*GraphAdapter)(nil)
	_ core.Retriever = (*MemoryAdapter)(nil)
	_ core.Retriever = (*WebAdapter)(nil)

	_ VectorIndex   = (*InMemoryVectorIndex)(nil)
	_ GraphStore    = (*InMemoryGraphStore)(nil)
	_ MemoryService = (*InMemoryMemoryService)(nil)
	_ WebSearcher   = (*StaticWebSearcher)(nil)
)

func TestVectorAdapter_Fetch(t *testing.T) {
	emb := model.NewMockEmbedder(8)
	ix := NewInMemoryVectorIndex()

	ctx := context.Background()
	for _, doc := range []struct{ id, content string }{
		{"v1", "caching reduces latency"},
		{"v2", "databases store rows"},
		{"v3", "caching reduces latency"}, // duplicate content
	} {
		vec, err := emb.Embed(ctx, doc.content)
		require.NoError(t, err)
		ix.Add(doc.id, vec, doc.content, map[string]string{"doc": doc.id})
	}

	a := NewVectorAdapter(emb, ix)
	assert.Equal(t, core.SourceVector, a.Kind())

	items, err := a.Fetch(ctx, "caching reduces latency", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Identical content embeds identically, so the two duplicates rank first.
	assert.ElementsMatch(t, []string{"v1", "v3"}, []string{items[0].ID, items[1].ID})
	assert.Equal(t, items[0].Fingerprint, items[1].Fingerprint)
	assert.InDelta(t, 1.0, items[0].RawScore, 1e-9)
}

func TestVectorAdapter_ExpiredDeadline(t *testing.T) {
	a := NewVectorAdapter(model.NewMockEmbedder(4), NewInMemoryVectorIndex())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := a.Fetch(ctx, "q", 3)
	require.Error(t, err)

	var aerr *core.AdapterError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, core.SourceVector, aerr.Source)
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestGraphAdapter_TraverseAndWritePath(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	require.NoError(t, g.UpsertNode(ctx, GraphNode{ID: "caching", Content: "caching keeps hot data close"}))
	require.NoError(t, g.UpsertNode(ctx, GraphNode{ID: "latency", Content: "latency is time to first byte"}))
	require.NoError(t, g.UpsertEdge(ctx, GraphEdge{From: "caching", To: "latency", Relation: "reduces", Confidence: 0.9}))

	// edge endpoints must exist
	err := g.UpsertEdge(ctx, GraphEdge{From: "caching", To: "missing"})
	assert.Error(t, err)

	a := NewGraphAdapter(g)
	assert.Equal(t, core.SourceGraph, a.Kind())

	items, err := a.Fetch(ctx, "caching", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "caching", items[0].ID)
	assert.Equal(t, "latency", items[1].ID)
	assert.Equal(t, "reduces", items[1].Metadata["relation"])
	assert.Greater(t, items[0].RawScore, items[1].RawScore)
}

func TestMemoryAdapter_FetchObservesUsage(t *testing.T) {
	svc := NewInMemoryMemoryService()
	ctx := context.Background()
	require.NoError(t, svc.Upsert(ctx, MemoryEntity{ID: "m1", Content: "user prefers caching articles"}))
	require.NoError(t, svc.Upsert(ctx, MemoryEntity{ID: "m2", Content: "unrelated note"}))

	a := NewMemoryAdapter(svc)
	items, err := a.Fetch(ctx, "caching", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m1", items[0].ID)

	// usage observation is asynchronous
	assert.Eventually(t, func() bool { return svc.UsageCount("m1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, svc.UsageCount("m2"))
}

func TestMemoryAdapter_DeleteMissing(t *testing.T) {
	a := NewMemoryAdapter(NewInMemoryMemoryService())
	err := a.Delete(context.Background(), "ghost")
	require.Error(t, err)

	var aerr *core.AdapterError
	assert.ErrorAs(t, err, &aerr)
}

func TestWebAdapter_Fetch(t *testing.T) {
	s := &StaticWebSearcher{Hits: []WebHit{
		{URL: "https://example.com/a", Snippet: "about caching", Score: 0.8},
		{URL: "https://example.com/b", Snippet: "about latency", Score: 0.6},
		{URL: "https://example.com/c", Snippet: "other", Score: 0.1},
	}}

	a := NewWebAdapter(s)
	assert.Equal(t, core.SourceWeb, a.Kind())

	items, err := a.Fetch(context.Background(), "caching", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/a", items[0].ID)
	assert.Equal(t, "about caching", items[0].Content)
}

func TestWrapErr_MapsContextErrors(t *testing.T) {
	assert.NoError(t, wrapErr(core.SourceWeb, nil))
	assert.ErrorIs(t, wrapErr(core.SourceWeb, context.DeadlineExceeded), core.ErrTimeout)
	assert.ErrorIs(t, wrapErr(core.SourceWeb, context.Canceled), core.ErrCancelled)

	backend := errors.New("connection refused")
	err := wrapErr(core.SourceGraph, backend)
	assert.ErrorIs(t, err, backend)
}
