package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseFullConfig(t *testing.T) {
	yaml := `
github:
  auth: app
  app_id: "12345"
  installation_id: "678"
  private_key_path: /path/to/key.pem
providers:
  embedding:
    type: ollama
    model: nomic-embed-text
    url: http://localhost:11434
  llm:
    type: anthropic
    model: claude-sonnet-4-5
    api_key: sk-test-key
notify:
  slack_webhook: https://hooks.slack.com/test
ingestion:
  chunk_size: 4096
  chunk_overlap: 512
  max_commits: 50
  ai_commit_summaries: 4
  pause_every: 20
  pause_duration: 2s
  llm_min_interval: 500ms
server:
  addr: ":9090"
  metrics_addr: ":9091"
  commit_poll_interval: 1h
ratelimit:
  redis_addr: localhost:6379
credits:
  default_balance: 300
store:
  path: /tmp/dionysus.db
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	appID, installID, err := cfg.GitHub.AppIDs()
	if err != nil || appID != 12345 || installID != 678 {
		t.Errorf("AppIDs() = %d, %d, %v", appID, installID, err)
	}
	if cfg.Providers.Embedding.Type != "ollama" {
		t.Errorf("expected embedding type 'ollama', got %q", cfg.Providers.Embedding.Type)
	}
	if cfg.Providers.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("expected llm model, got %q", cfg.Providers.LLM.Model)
	}
	if cfg.Ingestion.ChunkSize != 4096 || cfg.Ingestion.ChunkOverlap != 512 {
		t.Errorf("unexpected chunking %+v", cfg.Ingestion)
	}
	if cfg.Ingestion.MaxCommits != 50 || cfg.Ingestion.AICommitSummaries != 4 || cfg.Ingestion.PauseEvery != 20 {
		t.Errorf("unexpected ingestion settings %+v", cfg.Ingestion)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MetricsAddr != ":9091" {
		t.Errorf("unexpected server settings %+v", cfg.Server)
	}
	if cfg.RateLimit.RedisAddr != "localhost:6379" || cfg.RateLimit.KeyPrefix != "dionysus:ratelimit" {
		t.Errorf("unexpected rate limit settings %+v", cfg.RateLimit)
	}
	if cfg.Credits.DefaultBalance != 300 {
		t.Errorf("expected balance 300, got %d", cfg.Credits.DefaultBalance)
	}
	if cfg.Store.Path != "/tmp/dionysus.db" {
		t.Errorf("expected store path '/tmp/dionysus.db', got %q", cfg.Store.Path)
	}

	if d, _ := cfg.Ingestion.PauseDuration(); d != 2*time.Second {
		t.Errorf("expected 2s pause, got %v", d)
	}
	if d, _ := cfg.Ingestion.LLMMinInterval(); d != 500*time.Millisecond {
		t.Errorf("expected 500ms interval, got %v", d)
	}
	if d, _ := cfg.Server.CommitPollInterval(); d != time.Hour {
		t.Errorf("expected 1h poll interval, got %v", d)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GitHub.Auth != "token" {
		t.Errorf("expected token auth, got %q", cfg.GitHub.Auth)
	}
	in := cfg.Ingestion
	if in.ChunkSize != 8192 || in.ChunkOverlap != 1024 {
		t.Errorf("unexpected chunk defaults %d/%d", in.ChunkSize, in.ChunkOverlap)
	}
	if in.MaxCommits != 100 || in.AICommitSummaries != 8 || in.CommitConcurrency != 10 || in.LoaderConcurrency != 5 {
		t.Errorf("unexpected ingestion defaults %+v", in)
	}
	if d, _ := in.DiffTimeout(); d != 30*time.Second {
		t.Errorf("expected 30s diff timeout, got %v", d)
	}
	if d, _ := in.FileTimeout(); d != 60*time.Second {
		t.Errorf("expected 60s file timeout, got %v", d)
	}
	if d, _ := in.LLMMinInterval(); d != 0 {
		t.Errorf("expected pacing disabled by default, got %v", d)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Credits.DefaultBalance != 150 {
		t.Errorf("expected default balance 150, got %d", cfg.Credits.DefaultBalance)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join(".dionysus", "dionysus.db")) || strings.HasPrefix(cfg.Store.Path, "~") {
		t.Errorf("unexpected default store path %q", cfg.Store.Path)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "my-secret-key")

	yaml := `
providers:
  llm:
    type: openai
    api_key: ${TEST_API_KEY}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "my-secret-key" {
		t.Errorf("expected api_key 'my-secret-key', got %q", cfg.Providers.LLM.APIKey)
	}
}

func TestEnvVarMissing(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")

	yaml := `
github:
  token: ${NONEXISTENT_VAR_12345}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing env var, got nil")
	}

	expected := "missing required environment variables: NONEXISTENT_VAR_12345"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DIONYSUS_TEST_TOKEN=from-dotenv\nDIONYSUS_TEST_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DIONYSUS_TEST_KEEP", "from-env")
	t.Setenv("DIONYSUS_TEST_TOKEN", "")
	os.Unsetenv("DIONYSUS_TEST_TOKEN")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("DIONYSUS_TEST_TOKEN"); got != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("DIONYSUS_TEST_KEEP"); got != "from-env" {
		t.Errorf("existing variables must win, got %q", got)
	}

	cfg, err := Parse([]byte("github:\n  token: ${DIONYSUS_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitHub.Token != "from-dotenv" {
		t.Errorf("expected token from .env, got %q", cfg.GitHub.Token)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":7000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("expected :7000, got %q", cfg.Server.Addr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth", "github:\n  auth: oauth\n"},
		{"app without ids", "github:\n  auth: app\n  private_key: x\n"},
		{"app without key", "github:\n  auth: app\n  app_id: \"1\"\n  installation_id: \"2\"\n"},
		{"overlap not below size", "ingestion:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"negative concurrency", "ingestion:\n  commit_concurrency: -1\n"},
		{"negative balance", "credits:\n  default_balance: -5\n"},
		{"bad pause duration", "ingestion:\n  pause_duration: soon\n"},
		{"bad poll interval", "server:\n  commit_poll_interval: 10\n"},
		{"bad llm type", "providers:\n  llm:\n    type: openAI\n"},
		{"bad embedding type", "providers:\n  embedding:\n    type: anthropic\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidationValidProviderTypes(t *testing.T) {
	for _, llm := range []string{"openai", "anthropic", "ollama", ""} {
		yaml := "providers:\n  llm:\n    type: \"" + llm + "\"\n"
		if _, err := Parse([]byte(yaml)); err != nil {
			t.Errorf("llm type %q: unexpected error %v", llm, err)
		}
	}
	for _, emb := range []string{"openai", "ollama", ""} {
		yaml := "providers:\n  embedding:\n    type: \"" + emb + "\"\n"
		if _, err := Parse([]byte(yaml)); err != nil {
			t.Errorf("embedding type %q: unexpected error %v", emb, err)
		}
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde prefix", "~/.dionysus/dionysus.db", home + "/.dionysus/dionysus.db"},
		{"tilde only", "~", home},
		{"absolute path unchanged", "/tmp/dionysus.db", "/tmp/dionysus.db"},
		{"relative path unchanged", "data/dionysus.db", "data/dionysus.db"},
		{"tilde in middle unchanged", "/some/~/path", "/some/~/path"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := expandTilde(tc.input); got != tc.expected {
				t.Errorf("expandTilde(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
