package core

import "time"

// Query is a transient hybrid-search request: free text plus optional
// constraints. A zero value for any optional field means "use the engine
// default". Queries are never persisted.
type Query struct {
	// Text is the free-text query routed to every allowed adapter.
	Text string
	// Sources is the allow-list of adapters to fan out to. Empty means all
	// registered sources.
	Sources []SourceKind
	// PerSourceK overrides how many hits each adapter is asked for.
	PerSourceK int
	// TopN bounds the fused result length. Zero means the engine default.
	TopN int
	// Deadline bounds the whole fan-out call. Zero means the coordinator's
	// configured ceiling.
	Deadline time.Duration
}

// Allows reports whether the query's allow-list permits the given source.
// An empty allow-list permits everything.
func (q Query) Allows(kind SourceKind) bool {
	if len(q.Sources) == 0 {
		return true
	}
	for _, s := range q.Sources {
		if s == kind {
			return true
		}
	}
	return false
}
