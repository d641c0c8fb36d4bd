package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// In-memory collaborator implementations. They are naive process-local
// stands-in for the real back-ends (Qdrant, Neo4j, Mem0, a search API) and
// are suitable for tests and local development only. Concurrency: protected
// by RWMutex.

// InMemoryVectorIndex is a volatile VectorIndex using exact cosine
// similarity over stored vectors.
type InMemoryVectorIndex struct {
	mu      sync.RWMutex
	entries []vectorEntry
}

type vectorEntry struct {
	id       string
	vector   []float32
	content  string
	metadata map[string]string
}

// NewInMemoryVectorIndex constructs an empty in-memory vector index.
func NewInMemoryVectorIndex() *InMemoryVectorIndex {
	return &InMemoryVectorIndex{}
}

// Add stores a vector with its content and metadata.
func (ix *InMemoryVectorIndex) Add(id string, vector []float32, content string, metadata map[string]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, vectorEntry{id: id, vector: vector, content: content, metadata: metadata})
}

// KNN implements VectorIndex with an exact linear scan.
func (ix *InMemoryVectorIndex) KNN(ctx context.Context, vector []float32, k int) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]VectorHit, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, VectorHit{
			ID:       e.id,
			Score:    cosineSimilarity(vector, e.vector),
			Content:  e.content,
			Metadata: e.metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// InMemoryGraphStore is a volatile GraphStore. Traverse matches nodes whose
// content shares a term with the pattern, then follows edges up to the given
// depth.
type InMemoryGraphStore struct {
	mu    sync.RWMutex
	nodes map[string]GraphNode
	edges []GraphEdge
}

// NewInMemoryGraphStore constructs an empty in-memory graph store.
func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{nodes: make(map[string]GraphNode)}
}

// UpsertNode implements GraphStore.
func (g *InMemoryGraphStore) UpsertNode(_ context.Context, node GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node
	return nil
}

// UpsertEdge implements GraphStore. Both endpoints must exist.
func (g *InMemoryGraphStore) UpsertEdge(_ context.Context, edge GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[edge.From]; !ok {
		return fmt.Errorf("unknown node %q", edge.From)
	}
	if _, ok := g.nodes[edge.To]; !ok {
		return fmt.Errorf("unknown node %q", edge.To)
	}
	g.edges = append(g.edges, edge)
	return nil
}

// Node returns a stored node by id.
func (g *InMemoryGraphStore) Node(id string) (GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Traverse implements GraphStore.
func (g *InMemoryGraphStore) Traverse(ctx context.Context, pattern string, depth int) ([]GraphHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seeds := g.matchLocked(pattern)

	seen := map[string]bool{}
	var hits []GraphHit
	frontier := seeds
	for _, id := range seeds {
		if seen[id] {
			continue
		}
		seen[id] = true
		hits = append(hits, GraphHit{NodeID: id, Content: g.nodes[id].Content, Confidence: 1.0})
	}

	// Breadth-first expansion; confidence decays with each hop and edge
	// confidence.
	conf := 1.0
	for d := 0; d < depth; d++ {
		conf *= 0.8
		var next []string
		for _, id := range frontier {
			for _, e := range g.edges {
				var neighbor string
				switch id {
				case e.From:
					neighbor = e.To
				case e.To:
					neighbor = e.From
				default:
					continue
				}
				if seen[neighbor] {
					continue
				}
				seen[neighbor] = true
				next = append(next, neighbor)
				hits = append(hits, GraphHit{
					NodeID:     neighbor,
					Relation:   e.Relation,
					Content:    g.nodes[neighbor].Content,
					Confidence: conf * edgeConfidence(e),
				})
			}
		}
		frontier = next
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Confidence > hits[j].Confidence })
	return hits, nil
}

func edgeConfidence(e GraphEdge) float64 {
	if e.Confidence <= 0 {
		return 1.0
	}
	return e.Confidence
}

// matchLocked returns ids of nodes sharing at least one term with the pattern.
func (g *InMemoryGraphStore) matchLocked(pattern string) []string {
	terms := strings.Fields(strings.ToLower(pattern))
	var ids []string
	for id, n := range g.nodes {
		content := strings.ToLower(n.Content)
		for _, t := range terms {
			if strings.Contains(content, t) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// InMemoryMemoryService is a volatile MemoryService. Search scores entities
// by term overlap with the query; ObserveUsage counts per-entity hits.
type InMemoryMemoryService struct {
	mu       sync.RWMutex
	entities map[string]MemoryEntity
	usage    map[string]int
}

// NewInMemoryMemoryService constructs an empty in-memory memory service.
func NewInMemoryMemoryService() *InMemoryMemoryService {
	return &InMemoryMemoryService{entities: make(map[string]MemoryEntity), usage: make(map[string]int)}
}

// Upsert implements MemoryService.
func (m *InMemoryMemoryService) Upsert(_ context.Context, entity MemoryEntity) error {
	if entity.ID == "" {
		return fmt.Errorf("memory entity id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entity.ID] = entity
	return nil
}

// Delete implements MemoryService.
func (m *InMemoryMemoryService) Delete(_ context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[entityID]; !ok {
		return fmt.Errorf("memory entity %q not found", entityID)
	}
	delete(m.entities, entityID)
	return nil
}

// Search implements MemoryService.
func (m *InMemoryMemoryService) Search(ctx context.Context, query string, k int) ([]MemoryHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	hits := make([]MemoryHit, 0, len(m.entities))
	for _, e := range m.entities {
		score := termOverlap(terms, strings.ToLower(e.Content))
		if score <= 0 {
			continue
		}
		hits = append(hits, MemoryHit{ID: e.ID, Content: e.Content, Score: score, Metadata: e.Metadata})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// ObserveUsage implements MemoryService.
func (m *InMemoryMemoryService) ObserveUsage(_ context.Context, entityIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range entityIDs {
		m.usage[id]++
	}
	return nil
}

// UsageCount returns how often an entity has been observed in search results.
func (m *InMemoryMemoryService) UsageCount(entityID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[entityID]
}

func termOverlap(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range queryTerms {
		if strings.Contains(content, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// StaticWebSearcher is a canned WebSearcher for tests and offline use: it
// returns its fixed hit list for every query, truncated to k.
type StaticWebSearcher struct {
	Hits []WebHit
}

// Search implements WebSearcher.
func (s *StaticWebSearcher) Search(ctx context.Context, _ string, k int) ([]WebHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := s.Hits
	if len(hits) > k {
		hits = hits[:k]
	}
	return append([]WebHit(nil), hits...), nil
}
