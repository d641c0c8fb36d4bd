package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)

	a, err := e.Embed(context.Background(), "caching and latency")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "caching and latency")
	require.NoError(t, err)
	c, err := e.Embed(context.Background(), "something else entirely")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 8)
}

func TestMockGenerator_CannedAndFallback(t *testing.T) {
	g := NewMockGenerator("default answer")
	g.AddResponse("ping", "pong")

	out, err := g.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)

	out, err = g.Generate(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "default answer", out)
}

func TestMockGenerator_RespectsCancellation(t *testing.T) {
	g := NewMockGenerator("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "ping")
	assert.Error(t, err)
}
