package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrTimeout          = errors.New("request timed out")
	ErrInvalidResponse  = errors.New("invalid response from provider")
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// EmbeddingDimensions is the vector size stored with code records.
const EmbeddingDimensions = 768

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder extends Embedder with batch embedding support.
// Providers that support native batch embedding (e.g., OpenAI) should implement this
// for better performance. Other providers can use EmbedBatchSequential as a fallback.
type BatchEmbedder interface {
	Embedder
	// EmbedBatch returns vector embeddings for multiple texts in a single call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatchSequential implements batch embedding by calling Embed sequentially.
// Use this as a fallback for providers that don't support native batch embedding.
func EmbedBatchSequential(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emb, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// ValidateEmbedding checks that v has exactly dim finite components.
func ValidateEmbedding(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, dim, len(v))
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// Completer generates text completions from a prompt.
type Completer interface {
	// Complete returns a text completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Streamer generates a completion incrementally. onDelta is called with
// each piece of text in order; an error from onDelta stops the stream.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onDelta func(string) error) error
}

// StreamingCompleter is a Completer that can also stream.
type StreamingCompleter interface {
	Completer
	Streamer
}

// EmbedderConfig holds configuration for creating an Embedder.
type EmbedderConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// CompleterConfig holds configuration for creating a Completer.
type CompleterConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// NewCompleter builds the completer named by cfg.Type.
func NewCompleter(cfg CompleterConfig) (StreamingCompleter, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAICompleter(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicCompleter(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaCompleter(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Type)
	}
}

// NewEmbedder builds the embedder named by cfg.Type. An empty type means
// embeddings are disabled and returns nil.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Type)
	}
}
