// Package model defines the provider-agnostic abstractions for the two model
// capabilities the engine consumes: text embedding (feeding the vector
// retrieval adapter) and text generation (optional drafting / planning
// assistance for workers and the supervisor).
//
// Providers (e.g. OpenAI, Anthropic) implement these interfaces so higher
// layers remain decoupled from vendor SDKs. Mock implementations keep tests
// hermetic and deterministic.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Embedder turns text into a dense vector. The embedding algorithm itself is
// an external concern; the engine only relies on vectors from the same
// embedder being comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Info returns information about the embedder implementation.
	Info() Info
}

// Generator produces a completion for a prompt. Implementations must respect
// ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// Info returns information about the generator implementation.
	Info() Info
}

// MockEmbedder is a deterministic in-memory Embedder for tests and local
// runs. Vectors are derived from a content hash, so equal text always embeds
// to the equal vector and distinct text almost always differs.
type MockEmbedder struct {
	dim int
}

// NewMockEmbedder constructs a MockEmbedder producing vectors of dim
// dimensions (default 8 when dim <= 0).
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{dim: dim}
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, m.dim)
	for i := range vec {
		// Stretch the 32 hash bytes over the requested dimensionality.
		off := (i * 4) % (len(sum) - 4)
		u := binary.BigEndian.Uint32(sum[off : off+4])
		vec[i] = float32(u%1000)/1000.0 - 0.5
	}
	// Unit-normalize so cosine similarity behaves.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// Info implements Embedder.
func (m *MockEmbedder) Info() Info { return Info{Name: "mock-embedder", Provider: "mock"} }

// MockGenerator is a lightweight in-memory Generator useful for tests.
type MockGenerator struct {
	info      Info
	responses map[string]string
	fallback  string
}

// NewMockGenerator constructs a MockGenerator with an optional fallback
// completion returned for unregistered prompts.
func NewMockGenerator(fallback string) *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: "mock-generator", Provider: "mock"},
		responses: make(map[string]string),
		fallback:  fallback,
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockGenerator) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp, ok := m.responses[prompt]; ok {
		return resp, nil
	}
	return m.fallback, nil
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }
