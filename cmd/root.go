package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/ad-itya07/Dionysus/internal/chunk"
	"github.com/ad-itya07/Dionysus/internal/commits"
	"github.com/ad-itya07/Dionysus/internal/config"
	"github.com/ad-itya07/Dionysus/internal/credits"
	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/ingest"
	"github.com/ad-itya07/Dionysus/internal/loader"
	"github.com/ad-itya07/Dionysus/internal/notify"
	"github.com/ad-itya07/Dionysus/internal/provider"
	"github.com/ad-itya07/Dionysus/internal/pubsub"
	"github.com/ad-itya07/Dionysus/internal/qa"
	"github.com/ad-itya07/Dionysus/internal/store"
	"github.com/ad-itya07/Dionysus/internal/summarize"
	"github.com/ad-itya07/Dionysus/internal/ui"
)

var (
	cfgFile string
	envFile string
	verbose bool
	noColor bool
	userID  string
)

var rootCmd = &cobra.Command{
	Use:   "dionysus",
	Short: "Ingest GitHub repositories and answer questions about them",
	Long: `Dionysus ingests a GitHub repository's files and commit history,
summarizes them with a language model and answers questions about the
code using the stored summaries as context.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)
		if err := config.LoadEnvFile(envFile); err != nil {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables for ${VAR} expansion")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", defaultUser(), "user id that owns projects and credits (env DIONYSUS_USER)")
}

func defaultUser() string {
	if u := os.Getenv("DIONYSUS_USER"); u != "" {
		return u
	}
	return "local"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// components holds the wired services shared by subcommands.
type components struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.DB
	Hosts     *github.Hosts
	Broker    *pubsub.Broker[ingest.ProgressEvent]
	LLM       provider.StreamingCompleter
	Embedder  provider.Embedder
	Processor *commits.Processor
	Poller    *commits.Poller
	Admission *credits.Admission
	Service   *ingest.Service
	Answerer  *qa.Answerer

	closers []func() error
}

// Close releases the store and any shared rate limit budget.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// initComponents wires every service from config. Background ingestion
// runs are bound to ctx.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db
	c.closers = append(c.closers, db.Close)

	hosts, err := newHosts(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Hosts = hosts

	if cfg.Providers.LLM.Type != "" {
		llm, err := provider.NewCompleter(provider.CompleterConfig{
			Type:   cfg.Providers.LLM.Type,
			Model:  cfg.Providers.LLM.Model,
			APIKey: cfg.Providers.LLM.APIKey,
			URL:    cfg.Providers.LLM.URL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
		interval, err := cfg.Ingestion.LLMMinInterval()
		if err != nil {
			return nil, err
		}
		c.LLM = provider.NewThrottled(llm, interval)
	}

	c.Embedder, err = provider.NewEmbedder(provider.EmbedderConfig{
		Type:   cfg.Providers.Embedding.Type,
		Model:  cfg.Providers.Embedding.Model,
		APIKey: cfg.Providers.Embedding.APIKey,
		URL:    cfg.Providers.Embedding.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	diffTimeout, err := cfg.Ingestion.DiffTimeout()
	if err != nil {
		return nil, err
	}
	fileTimeout, err := cfg.Ingestion.FileTimeout()
	if err != nil {
		return nil, err
	}
	summarizer := summarize.New(summarize.Options{
		Completer:   c.LLM,
		Sources:     summarize.HostSource(hosts),
		DiffTimeout: diffTimeout,
		FileTimeout: fileTimeout,
		Logger:      logger,
	})

	c.Processor = commits.NewProcessor(db, commits.HostLister(hosts), summarizer, commits.Options{
		MaxCommits:  cfg.Ingestion.MaxCommits,
		AISummaries: cfg.Ingestion.AICommitSummaries,
		Concurrency: cfg.Ingestion.CommitConcurrency,
		Logger:      logger,
	})
	c.Poller = commits.NewPoller(db, c.Processor, logger)
	c.Broker = pubsub.NewBroker[ingest.ProgressEvent]()

	pause, err := cfg.Ingestion.PauseDuration()
	if err != nil {
		return nil, err
	}
	deps := ingest.Deps{
		Store:          db,
		Validators:     ingest.HostValidator(hosts),
		Loader:         loader.New(loader.HostSource(hosts), loader.Options{Concurrency: cfg.Ingestion.LoaderConcurrency, Logger: logger}),
		Summarizer:     summarizer,
		Commits:        c.Processor,
		Embedder:       c.Embedder,
		EmbeddingModel: cfg.Providers.Embedding.Model,
		Broker:         c.Broker,
		Logger:         logger,
	}
	if n := notify.NewNotifier(cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook); n != nil {
		deps.Notifier = n
	}
	orch := ingest.NewOrchestrator(deps, ingest.Options{
		Chunk:         chunk.Options{Size: cfg.Ingestion.ChunkSize, Overlap: cfg.Ingestion.ChunkOverlap},
		PauseEvery:    cfg.Ingestion.PauseEvery,
		PauseDuration: pause,
	})

	c.Admission = credits.NewAdmission(db, credits.HostCounter(hosts), cfg.Credits.DefaultBalance)
	c.Service = ingest.NewService(ctx, db, orch, c.Admission, c.Poller, logger)

	var streamer provider.Streamer = unavailableLLM{}
	if c.LLM != nil {
		streamer = c.LLM
	}
	c.Answerer = qa.NewAnswerer(db, streamer, logger)

	ok = true
	return c, nil
}

// newHosts builds the GitHub hosts for the configured default credential,
// sharing rate limit budgets through Redis when configured.
func newHosts(ctx context.Context, c *components) (*github.Hosts, error) {
	cfg := c.Config
	opts := github.HostOptions{Logger: c.Logger}
	if cfg.RateLimit.RedisAddr != "" {
		budget, err := github.NewRedisBudget(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.KeyPrefix, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting rate limit budget: %w", err)
		}
		opts.Budget = budget
		c.closers = append(c.closers, budget.Close)
	}

	var client *gogithub.Client
	var key string
	switch cfg.GitHub.Auth {
	case "app":
		appID, installID, err := cfg.GitHub.AppIDs()
		if err != nil {
			return nil, err
		}
		client, err = github.NewAppClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		key = "app:" + cfg.GitHub.InstallationID
	default:
		client = github.NewTokenClient(cfg.GitHub.Token)
		key = github.CredentialKey(cfg.GitHub.Token)
	}
	return github.NewHosts(client, key, opts), nil
}

// unavailableLLM answers every question with an error, which the
// answerer turns into its apology message.
type unavailableLLM struct{}

func (unavailableLLM) Stream(context.Context, string, func(string) error) error {
	return errors.New("no LLM provider configured")
}

// openComponents loads config and wires components for one command run.
func openComponents(ctx context.Context) (*components, error) {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
