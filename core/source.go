package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SourceKind identifies one of the heterogeneous knowledge back-ends a
// retrieval adapter can front. The set is closed: fusion weights, fan-out
// allow-lists and degraded-source reporting all key off these constants.
type SourceKind string

const (
	// SourceVector is the dense vector similarity store.
	SourceVector SourceKind = "vector"
	// SourceGraph is the graph relationship store.
	SourceGraph SourceKind = "graph"
	// SourceMemory is the persistent memory scoring service.
	SourceMemory SourceKind = "memory"
	// SourceWeb is the external web search service.
	SourceWeb SourceKind = "web"
)

// AllSources returns every known source kind in canonical order. The order is
// load-bearing: it is the "earliest-seen source" tie-break during fusion and
// the flattening order of fan-out results.
func AllSources() []SourceKind {
	return []SourceKind{SourceVector, SourceGraph, SourceMemory, SourceWeb}
}

// SourceOrder maps a kind to its canonical position. Unknown kinds sort
// after all known ones.
func SourceOrder(k SourceKind) int {
	for i, s := range AllSources() {
		if s == k {
			return i
		}
	}
	return len(AllSources())
}

// RetrievalItem is one scored hit produced by a retrieval adapter. Items are
// immutable once produced; fusion copies rather than mutates them. RawScore
// is only meaningful relative to other items from the same source.
type RetrievalItem struct {
	ID          string            `json:"id"`
	Source      SourceKind        `json:"source"`
	Content     string            `json:"content"`
	RawScore    float64           `json:"raw_score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// NewRetrievalItem constructs an item and derives its content fingerprint.
func NewRetrievalItem(id string, source SourceKind, content string, rawScore float64, metadata map[string]string) RetrievalItem {
	return RetrievalItem{
		ID:          id,
		Source:      source,
		Content:     content,
		RawScore:    rawScore,
		Metadata:    metadata,
		Fingerprint: Fingerprint(content),
	}
}

// Fingerprint returns the stable dedup identity of a piece of content: the
// hex SHA-256 of the content lowercased with runs of whitespace collapsed to
// a single space. Two items with equal fingerprints are treated as the same
// knowledge within one fusion pass.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// FusedItem is a retrieval item annotated by the fusion engine with its
// normalized score, combined fused score, final rank and the set of sources
// that contributed it (more than one after deduplication).
type FusedItem struct {
	RetrievalItem

	NormalizedScore float64      `json:"normalized_score"`
	FusedScore      float64      `json:"fused_score"`
	Rank            int          `json:"rank"`
	Sources         []SourceKind `json:"sources"`
}

// FusedResult is the deterministic ranked output of one fusion pass. It is
// derived per query and never persisted. Degraded lists the sources that
// failed or timed out during the fan-out that produced the input.
type FusedResult struct {
	Items    []FusedItem  `json:"items"`
	Degraded []SourceKind `json:"degraded,omitempty"`
}

// IDs returns the fused item ids in rank order. Worker citations are
// validated against this set.
func (r FusedResult) IDs() []string {
	ids := make([]string, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ID
	}
	return ids
}

// FanOutResult carries the raw per-source batches collected by the fan-out
// coordinator, before fusion. Batches preserve each adapter's own ranking;
// no ordering is guaranteed across sources.
type FanOutResult struct {
	BySource map[SourceKind][]RetrievalItem
	Degraded []SourceKind
}

// Items flattens the per-source batches in canonical source order.
func (r FanOutResult) Items() []RetrievalItem {
	var out []RetrievalItem
	for _, s := range AllSources() {
		out = append(out, r.BySource[s]...)
	}
	return out
}
