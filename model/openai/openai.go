// Package openai implements model.Embedder and model.Generator on top of the
// official OpenAI Go SDK (Embeddings and Chat Completions APIs).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

// Options configure the OpenAI adapters. Fields mirror a subset of the API
// parameters intentionally kept minimal; extend via functional options
// without breaking callers.
type Options struct {
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
	MaxTokens      int64
}

// Client wraps the OpenAI SDK behind the generic model interfaces.
type Client struct {
	client *openai.Client
	opts   Options
}

// Compile-time interface checks.
var (
	_ model.Embedder  = (*Client)(nil)
	_ model.Generator = (*Client)(nil)
)

// New creates a new adapter using the default SDK client (API key from the
// environment).
func New(optFns ...func(o *Options)) *Client {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new adapter from an existing SDK client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		EmbeddingModel: openai.EmbeddingModelTextEmbedding3Small,
		ChatModel:      openai.ChatModelGPT4oMini,
		Temperature:    0.2,
		MaxTokens:      1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Embed implements model.Embedder via the Embeddings API.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.opts.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no data")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Generate implements model.Generator via the Chat Completions API
// (non-streaming).
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               c.opts.ChatModel,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Info implements model.Embedder / model.Generator.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.ChatModel, Provider: "openai"}
}
