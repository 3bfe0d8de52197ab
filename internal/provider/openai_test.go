package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// newTestClient creates an openai.Client that points at the given test server.
func newTestClient(serverURL string) *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = serverURL
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAIComplete(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		want    string
		wantErr error
	}{
		{
			name:   "valid response",
			status: http.StatusOK,
			body: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "A summary."}},
			}},
			want: "A summary.",
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    openai.ChatCompletionResponse{},
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit"}},
			wantErr: ErrRateLimit,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			completer := newOpenAICompleterWithClient(newTestClient(server.URL), "")
			got, err := completer.Complete(context.Background(), "summarize")

			if tt.status != http.StatusOK && err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && tt.status == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"The ", "answer", "."} {
			chunk := openai.ChatCompletionStreamResponse{Choices: []openai.ChatCompletionStreamChoice{
				{Delta: openai.ChatCompletionStreamChoiceDelta{Content: piece}},
			}}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	completer := newOpenAICompleterWithClient(newTestClient(server.URL), "")
	var b strings.Builder
	err := completer.Stream(context.Background(), "question", func(s string) error {
		b.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.String() != "The answer." {
		t.Errorf("got %q", b.String())
	}
}

func TestOpenAIStreamCallbackErrorStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"x"}}]}`+"\n\n")
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stop := errors.New("client gone")
	completer := newOpenAICompleterWithClient(newTestClient(server.URL), "")
	var calls int
	err := completer.Stream(context.Background(), "q", func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 delta, got %d", calls)
	}
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if dims, _ := req["dimensions"].(float64); int(dims) != EmbeddingDimensions {
			t.Errorf("expected dimensions %d, got %v", EmbeddingDimensions, req["dimensions"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.EmbeddingResponse{Data: []openai.Embedding{
			{Index: 1, Embedding: []float32{2}},
			{Index: 0, Embedding: []float32{1}},
		}})
	}))
	defer server.Close()

	embedder := newOpenAIEmbedderWithClient(newTestClient(server.URL), "")
	vecs, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("embeddings not placed by index: %v", vecs)
	}
}

func TestOpenAIEmbedInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.EmbeddingResponse{Data: []openai.Embedding{}})
	}))
	defer server.Close()

	embedder := newOpenAIEmbedderWithClient(newTestClient(server.URL), "")
	if _, err := embedder.Embed(context.Background(), "text"); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
	if _, err := embedder.Embed(context.Background(), "   "); err == nil {
		t.Error("expected error for blank text")
	}
}
