package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Notify    NotifyConfig    `yaml:"notify"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Credits   CreditsConfig   `yaml:"credits"`
	Store     StoreConfig     `yaml:"store"`
}

// GitHubConfig holds the default GitHub credential. Auth is "token" (the
// default, anonymous when Token is empty) or "app".
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// AppIDs parses the GitHub App and installation IDs.
func (g GitHubConfig) AppIDs() (appID, installationID int64, err error) {
	appID, err = strconv.ParseInt(g.AppID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing app_id: %w", err)
	}
	installationID, err = strconv.ParseInt(g.InstallationID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing installation_id: %w", err)
	}
	return appID, installationID, nil
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ProvidersConfig groups embedding and LLM provider configs.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding"`
	LLM       ProviderConfig `yaml:"llm"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	MaxCommits        int    `yaml:"max_commits"`
	AICommitSummaries int    `yaml:"ai_commit_summaries"`
	CommitConcurrency int    `yaml:"commit_concurrency"`
	LoaderConcurrency int    `yaml:"loader_concurrency"`
	PauseEvery        int    `yaml:"pause_every"`
	PauseDurationRaw  string `yaml:"pause_duration"`
	DiffTimeoutRaw    string `yaml:"diff_timeout"`
	FileTimeoutRaw    string `yaml:"file_timeout"`
	LLMMinIntervalRaw string `yaml:"llm_min_interval"`
}

// PauseDuration returns the pause taken between summarization batches.
func (i IngestionConfig) PauseDuration() (time.Duration, error) {
	return parseDuration(i.PauseDurationRaw, time.Second)
}

// DiffTimeout bounds a single commit diff fetch.
func (i IngestionConfig) DiffTimeout() (time.Duration, error) {
	return parseDuration(i.DiffTimeoutRaw, 30*time.Second)
}

// FileTimeout bounds a single file summary request.
func (i IngestionConfig) FileTimeout() (time.Duration, error) {
	return parseDuration(i.FileTimeoutRaw, 60*time.Second)
}

// LLMMinInterval is the minimum spacing between language model requests.
// Zero disables pacing.
func (i IngestionConfig) LLMMinInterval() (time.Duration, error) {
	return parseDuration(i.LLMMinIntervalRaw, 0)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr                  string `yaml:"addr"`
	MetricsAddr           string `yaml:"metrics_addr"`
	CommitPollIntervalRaw string `yaml:"commit_poll_interval"`
}

// CommitPollInterval returns how often stored commit histories are refreshed.
func (s ServerConfig) CommitPollInterval() (time.Duration, error) {
	return parseDuration(s.CommitPollIntervalRaw, 10*time.Minute)
}

// RateLimitConfig selects where GitHub rate limit budgets are shared. An
// empty RedisAddr keeps them in process.
type RateLimitConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CreditsConfig holds credit settings.
type CreditsConfig struct {
	DefaultBalance int `yaml:"default_balance"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// DefaultPath returns ~/.dionysus/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dionysus/config.yaml"
	}
	return filepath.Join(home, ".dionysus", "config.yaml")
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	in := &cfg.Ingestion
	if in.ChunkSize == 0 {
		in.ChunkSize = 8192
	}
	if in.ChunkOverlap == 0 {
		in.ChunkOverlap = 1024
	}
	if in.MaxCommits == 0 {
		in.MaxCommits = 100
	}
	if in.AICommitSummaries == 0 {
		in.AICommitSummaries = 8
	}
	if in.CommitConcurrency == 0 {
		in.CommitConcurrency = 10
	}
	if in.LoaderConcurrency == 0 {
		in.LoaderConcurrency = 5
	}
	if in.PauseEvery == 0 {
		in.PauseEvery = 10
	}
	if in.PauseDurationRaw == "" {
		in.PauseDurationRaw = "1s"
	}
	if in.DiffTimeoutRaw == "" {
		in.DiffTimeoutRaw = "30s"
	}
	if in.FileTimeoutRaw == "" {
		in.FileTimeoutRaw = "60s"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.CommitPollIntervalRaw == "" {
		cfg.Server.CommitPollIntervalRaw = "10m"
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = "dionysus:ratelimit"
	}
	if cfg.Credits.DefaultBalance == 0 {
		cfg.Credits.DefaultBalance = 150
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.dionysus/dionysus.db"
	}
	cfg.Store.Path = expandTilde(cfg.Store.Path)
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token":
	case "app":
		if _, _, err := cfg.GitHub.AppIDs(); err != nil {
			return err
		}
		if cfg.GitHub.PrivateKey == "" && cfg.GitHub.PrivateKeyPath == "" {
			return fmt.Errorf("github app auth requires private_key or private_key_path")
		}
	default:
		return fmt.Errorf("unsupported github auth %q (want token or app)", cfg.GitHub.Auth)
	}

	in := cfg.Ingestion
	if in.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", in.ChunkSize)
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", in.ChunkOverlap)
	}
	for name, v := range map[string]int{
		"max_commits":         in.MaxCommits,
		"ai_commit_summaries": in.AICommitSummaries,
		"commit_concurrency":  in.CommitConcurrency,
		"loader_concurrency":  in.LoaderConcurrency,
		"pause_every":         in.PauseEvery,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if cfg.Credits.DefaultBalance < 0 {
		return fmt.Errorf("default_balance must not be negative, got %d", cfg.Credits.DefaultBalance)
	}

	durations := map[string]string{
		"pause_duration":       in.PauseDurationRaw,
		"diff_timeout":         in.DiffTimeoutRaw,
		"file_timeout":         in.FileTimeoutRaw,
		"llm_min_interval":     in.LLMMinIntervalRaw,
		"commit_poll_interval": cfg.Server.CommitPollIntervalRaw,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}

	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}

	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "": true}
	if !validLLMTypes[cfg.Providers.LLM.Type] {
		return fmt.Errorf("unsupported LLM provider type: %s", cfg.Providers.LLM.Type)
	}

	return nil
}
