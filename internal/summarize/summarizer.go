// Package summarize produces natural-language summaries of commits and
// source files. Every entry point returns text: when the language model
// fails or returns something unusable, a deterministic fallback is used.
package summarize

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/metrics"
	"github.com/ad-itya07/Dionysus/internal/provider"
	"github.com/ad-itya07/Dionysus/internal/retry"
)

const (
	// MaxDiffSize is the largest diff sent to the model.
	MaxDiffSize = 50 * 1024

	// MaxCodeSize is the largest file excerpt sent to the model.
	MaxCodeSize = 10000

	DefaultDiffTimeout = 30 * time.Second
	DefaultFileTimeout = 60 * time.Second

	minSummaryLength = 20
)

var (
	errEmptySummary    = errors.New("empty summary")
	errShortSummary    = errors.New("summary too short")
	errRepeatedSummary = errors.New("summary repeats another file's summary")
)

// CommitSource is the part of a GitHub host needed to summarize commits.
type CommitSource interface {
	GetCommitDiff(ctx context.Context, owner, repo, hash string) (string, error)
	GetCommitMessage(ctx context.Context, owner, repo, hash string) (string, error)
}

// SourceFunc returns a CommitSource authenticated with token. An empty
// token selects the default credential.
type SourceFunc func(token string) CommitSource

// HostSource adapts github.Hosts to a SourceFunc.
func HostSource(hosts *github.Hosts) SourceFunc {
	return func(token string) CommitSource {
		return hosts.For(token)
	}
}

// Options configures a Summarizer.
type Options struct {
	Completer   provider.Completer
	Sources     SourceFunc
	Policy      retry.Policy
	DiffTimeout time.Duration
	FileTimeout time.Duration
	Logger      *slog.Logger
}

// Summarizer produces commit and file summaries.
type Summarizer struct {
	completer   provider.Completer
	sources     SourceFunc
	policy      retry.Policy
	diffTimeout time.Duration
	fileTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Summarizer. Zero timeouts use the package defaults and a
// zero policy uses retry.DefaultPolicy.
func New(opts Options) *Summarizer {
	if opts.DiffTimeout <= 0 {
		opts.DiffTimeout = DefaultDiffTimeout
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = DefaultFileTimeout
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Summarizer{
		completer:   opts.Completer,
		sources:     opts.Sources,
		policy:      opts.Policy,
		diffTimeout: opts.DiffTimeout,
		fileTimeout: opts.FileTimeout,
		logger:      opts.Logger,
	}
}

// Commit summarizes one commit of the repository at repoURL. token may be
// empty. The result is never empty.
func (s *Summarizer) Commit(ctx context.Context, repoURL, hash, token string) string {
	logger := s.logger.With("commit", hash)

	ref, err := github.ParseRepoURL(repoURL)
	if err != nil || s.sources == nil {
		metrics.RecordSummary("commit", "fallback")
		return shortHashFallback(hash)
	}
	src := s.sources(token)

	diffCtx, cancel := context.WithTimeout(ctx, s.diffTimeout)
	diff, err := src.GetCommitDiff(diffCtx, ref.Owner, ref.Name, hash)
	cancel()
	if err != nil || strings.TrimSpace(diff) == "" {
		if err != nil {
			logger.Warn("fetching diff failed, using commit message", "error", err)
		}
		return s.commitFallback(ctx, src, ref, hash, "")
	}

	diff = Truncate(diff, MaxDiffSize)
	prompt, err := BuildCommitPrompt(diff)
	if err != nil {
		return s.commitFallback(ctx, src, ref, hash, diff)
	}

	summary, err := s.complete(ctx, prompt, logger, nil)
	if err != nil {
		logger.Warn("commit summary failed, using fallback", "error", err)
		return s.commitFallback(ctx, src, ref, hash, diff)
	}
	metrics.RecordSummary("commit", "ai")
	return summary
}

func (s *Summarizer) commitFallback(ctx context.Context, src CommitSource, ref github.RepoRef, hash, diff string) string {
	metrics.RecordSummary("commit", "fallback")
	msg, err := src.GetCommitMessage(ctx, ref.Owner, ref.Name, hash)
	if err != nil || strings.TrimSpace(msg) == "" {
		return shortHashFallback(hash)
	}
	return CommitFallback(msg, diff)
}

// Tracker records the file summaries accepted during one ingestion run so
// that a model answer repeated for a different file is rejected. It is
// safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	byHash map[[sha256.Size]byte]string // summary hash -> file name
}

// NewTracker returns an empty Tracker. Create one per run.
func NewTracker() *Tracker {
	return &Tracker{byHash: make(map[[sha256.Size]byte]string)}
}

func (t *Tracker) seen(summary string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.byHash[sha256.Sum256([]byte(summary))]
	return name, ok
}

func (t *Tracker) remember(summary, fileName string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byHash[sha256.Sum256([]byte(summary))] = fileName
}

// File summarizes a source file. A summary already accepted by tracker for
// another file is retried, then replaced by the fallback. A nil tracker
// skips that check. The result is never empty.
func (s *Summarizer) File(ctx context.Context, tracker *Tracker, fileName, code string) string {
	if strings.TrimSpace(code) == "" {
		metrics.RecordSummary("file", "fallback")
		return FileFallback(fileName, code)
	}

	logger := s.logger.With("file", fileName)
	excerpt := Truncate(code, MaxCodeSize)
	prompt, err := BuildFilePrompt(fileName, excerpt)
	if err != nil {
		metrics.RecordSummary("file", "fallback")
		return FileFallback(fileName, code)
	}

	ctx, cancel := context.WithTimeout(ctx, s.fileTimeout)
	defer cancel()

	summary, err := s.complete(ctx, prompt, logger, func(text string) error {
		if len(text) < minSummaryLength {
			return errShortSummary
		}
		if other, ok := tracker.seen(text); ok && other != fileName {
			return fmt.Errorf("%w %s", errRepeatedSummary, other)
		}
		return nil
	})
	if err != nil {
		logger.Warn("file summary failed, using fallback", "error", err)
		metrics.RecordSummary("file", "fallback")
		return FileFallback(fileName, code)
	}

	tracker.remember(summary, fileName)
	metrics.RecordSummary("file", "ai")
	return summary
}

// complete calls the model under the retry policy. Empty output and
// validation failures are retried like transport errors.
func (s *Summarizer) complete(ctx context.Context, prompt string, logger *slog.Logger, validate func(string) error) (string, error) {
	if s.completer == nil {
		return "", errors.New("no completer configured")
	}

	var summary string
	err := s.policy.Do(ctx, func() error {
		text, err := s.completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return errEmptySummary
		}
		if validate != nil {
			if err := validate(text); err != nil {
				return err
			}
		}
		summary = text
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Debug("retrying summary", "attempt", attempt, "error", err, "wait", wait)
	})
	return summary, err
}
