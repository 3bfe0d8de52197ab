// Package commits stores the recent history of ingested repositories with
// a summary per commit.
package commits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/metrics"
	"github.com/ad-itya07/Dionysus/internal/store"
	"github.com/ad-itya07/Dionysus/internal/summarize"
)

const (
	// DefaultMaxCommits is how many of the newest commits are considered.
	DefaultMaxCommits = 100

	// DefaultAISummaries is how many of the newest unseen commits get a
	// model-written summary.
	DefaultAISummaries = 8

	// DefaultConcurrency bounds simultaneous commit summaries.
	DefaultConcurrency = 10
)

// Lister lists repository history, newest first.
type Lister interface {
	ListAllCommits(ctx context.Context, owner, repo string, limit int) ([]github.Commit, error)
}

// ListerFunc returns a Lister for the credential token.
type ListerFunc func(token string) Lister

// HostLister adapts github.Hosts to a ListerFunc.
func HostLister(hosts *github.Hosts) ListerFunc {
	return func(token string) Lister {
		return hosts.For(token)
	}
}

// Summarizer writes a summary for one commit. It never fails.
type Summarizer interface {
	Commit(ctx context.Context, repoURL, hash, token string) string
}

// Options configures a Processor.
type Options struct {
	MaxCommits  int
	AISummaries int
	Concurrency int
	Logger      *slog.Logger
}

// Result reports what one run of the processor did.
type Result struct {
	Fetched    int
	New        int
	Inserted   int
	Summarized int
}

// Processor fetches unseen commits for a project and stores them.
type Processor struct {
	store       store.Store
	listers     ListerFunc
	summarizer  Summarizer
	maxCommits  int
	aiSummaries int
	concurrency int
	logger      *slog.Logger
}

// NewProcessor creates a Processor. AISummaries may be zero to disable
// model-written summaries; other zero options use the package defaults.
func NewProcessor(st store.Store, listers ListerFunc, summarizer Summarizer, opts Options) *Processor {
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = DefaultMaxCommits
	}
	if opts.AISummaries < 0 {
		opts.AISummaries = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		store:       st,
		listers:     listers,
		summarizer:  summarizer,
		maxCommits:  opts.MaxCommits,
		aiSummaries: opts.AISummaries,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Process stores the project's commits that are not stored yet. The newest
// few are summarized by the model and the rest by their message's first
// line. Re-running it never inserts a commit twice.
func (p *Processor) Process(ctx context.Context, project *store.Project) (Result, error) {
	var res Result
	ref, err := github.ParseRepoURL(project.RepoURL)
	if err != nil {
		return res, err
	}
	logger := p.logger.With("project", project.ID, "repo", ref.String())

	fetched, err := p.listers(project.GitHubToken).ListAllCommits(ctx, ref.Owner, ref.Name, p.maxCommits)
	if err != nil {
		return res, fmt.Errorf("listing commits: %w", err)
	}
	res.Fetched = len(fetched)

	seen, err := p.store.CommitHashes(project.ID)
	if err != nil {
		return res, fmt.Errorf("loading stored commits: %w", err)
	}

	var unseen []github.Commit
	for _, c := range fetched {
		if !seen[c.Hash] {
			unseen = append(unseen, c)
		}
	}
	res.New = len(unseen)
	if len(unseen) == 0 {
		logger.Debug("no new commits", "fetched", res.Fetched)
		return res, nil
	}

	records := make([]store.CommitRecord, len(unseen))
	for i, c := range unseen {
		records[i] = store.CommitRecord{
			ProjectID:    project.ID,
			Hash:         c.Hash,
			Message:      c.Message,
			AuthorName:   c.AuthorName,
			AuthorAvatar: c.AuthorAvatar,
			CommittedAt:  c.Date,
			Summary:      summarize.CommitFallback(c.Message, ""),
		}
	}

	ai := min(p.aiSummaries, len(records))
	if ai > 0 && p.summarizer != nil {
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i := range records[:ai] {
			g.Go(func() error {
				records[i].Summary = p.summarizer.Commit(gctx, project.RepoURL, records[i].Hash, project.GitHubToken)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Summarized = ai
		logger.Debug("commit summaries done", "count", ai, "elapsed", time.Since(start))
	}

	inserted, err := p.store.InsertCommits(records)
	if err != nil {
		return res, fmt.Errorf("storing commits: %w", err)
	}
	res.Inserted = inserted
	metrics.AddCommitsStored(inserted)

	logger.Info("commits processed", "fetched", res.Fetched, "new", res.New, "inserted", res.Inserted, "summarized", res.Summarized)
	return res, nil
}
