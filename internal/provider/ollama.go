package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaModel          = "llama3.1:8b"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
	defaultOllamaURL            = "http://localhost:11434"

	ollamaRequestTimeout = 30 * time.Second
)

// ollamaAPI is a minimal client for a local Ollama server's JSON API.
type ollamaAPI struct {
	url   string
	model string
	// client applies the request timeout; streams use transport only.
	client *http.Client
}

func newOllamaAPI(url, model, defaultModel string) ollamaAPI {
	if url == "" {
		url = defaultOllamaURL
	}
	if model == "" {
		model = defaultModel
	}
	return ollamaAPI{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: ollamaRequestTimeout},
	}
}

// post sends body to path and returns the response once its status is 200.
// The caller must close the body.
func (a ollamaAPI) post(ctx context.Context, client *http.Client, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("ollama %s: %w", path, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusTooManyRequests:
		err = fmt.Errorf("%w: ollama returned 429", ErrRateLimit)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		err = fmt.Errorf("%w: ollama returned %d", ErrTimeout, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	drain(resp)
	return nil, err
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// OllamaEmbedder embeds text with a local Ollama model such as
// nomic-embed-text (768 dimensions).
type OllamaEmbedder struct {
	api ollamaAPI
}

func NewOllamaEmbedder(url, model string) *OllamaEmbedder {
	return &OllamaEmbedder{api: newOllamaAPI(url, model, defaultOllamaEmbeddingModel)}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := e.api.post(ctx, e.api.client, "/api/embeddings", ollamaEmbeddingRequest{Model: e.api.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var out ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama embedding: %v", ErrInvalidResponse, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embedding", ErrInvalidResponse)
	}

	v := make([]float32, len(out.Embedding))
	for i, f := range out.Embedding {
		v[i] = float32(f)
	}
	return v, nil
}

// EmbedBatch embeds texts one request at a time; Ollama has no batch endpoint.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return EmbedBatchSequential(ctx, e, texts)
}

var _ BatchEmbedder = (*OllamaEmbedder)(nil)

// OllamaCompleter generates completions with a local Ollama model.
type OllamaCompleter struct {
	api ollamaAPI
}

// NewOllamaCompleter creates an OllamaCompleter. Empty arguments select
// http://localhost:11434 and llama3.1:8b.
func NewOllamaCompleter(url, model string) *OllamaCompleter {
	return &OllamaCompleter{api: newOllamaAPI(url, model, defaultOllamaModel)}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (r ollamaGenerateResponse) err() error {
	if r.Error != "" {
		return fmt.Errorf("ollama error: %s", r.Error)
	}
	return nil
}

// Complete returns the full completion for prompt.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.api.post(ctx, o.api.client, "/api/generate", ollamaGenerateRequest{Model: o.api.model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer drain(resp)

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if err := out.err(); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Stream delivers the completion for prompt as Ollama produces it. The
// server answers with one JSON object per line.
func (o *OllamaCompleter) Stream(ctx context.Context, prompt string, onDelta func(string) error) error {
	client := &http.Client{Transport: o.api.client.Transport}
	resp, err := o.api.post(ctx, client, "/api/generate", ollamaGenerateRequest{Model: o.api.model, Prompt: prompt, Stream: true})
	if err != nil {
		return err
	}
	defer drain(resp)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part ollamaGenerateResponse
		if err := json.Unmarshal(line, &part); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidResponse, err)
		}
		if err := part.err(); err != nil {
			return err
		}
		if part.Response != "" {
			if err := onDelta(part.Response); err != nil {
				return err
			}
		}
		if part.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("reading ollama stream: %w", err)
	}
	return nil
}
