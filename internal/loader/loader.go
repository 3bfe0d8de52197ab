// Package loader reads the text files of a GitHub repository at a branch.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ad-itya07/Dionysus/internal/github"
)

const (
	// DefaultConcurrency is the number of blobs fetched at once.
	DefaultConcurrency = 5

	// DefaultMaxFileSize skips blobs larger than this without downloading them.
	DefaultMaxFileSize = 1 << 20

	// binarySniffLen is how much of a blob is inspected for NUL bytes.
	binarySniffLen = 8000
)

// ignoredNames are file names skipped wherever they appear.
var ignoredNames = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"bun.lockb",
	"go.sum",
	"*.lock",
	"*.log",
}

// ignoredDirs are directories whose whole subtree is skipped.
var ignoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".next":        true,
	"dist":         true,
	"build":        true,
}

// Document is one file of a repository.
type Document struct {
	Path    string
	Content string
}

// RepositoryLoadError reports that a repository could not be read in full.
type RepositoryLoadError struct {
	Repo string
	Err  error
}

func (e *RepositoryLoadError) Error() string {
	return fmt.Sprintf("loading repository %s: %v", e.Repo, e.Err)
}

func (e *RepositoryLoadError) Unwrap() error { return e.Err }

// TreeSource is the part of a GitHub host needed to read a repository.
type TreeSource interface {
	GetDefaultBranch(ctx context.Context, owner, repo string) (string, error)
	GetTree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error)
	GetBlob(ctx context.Context, owner, repo, sha string) ([]byte, error)
}

// SourceFunc returns a TreeSource for the credential token.
type SourceFunc func(token string) TreeSource

// HostSource adapts github.Hosts to a SourceFunc.
func HostSource(hosts *github.Hosts) SourceFunc {
	return func(token string) TreeSource {
		return hosts.For(token)
	}
}

// Options configures a Loader.
type Options struct {
	Concurrency int
	MaxFileSize int
	Logger      *slog.Logger
}

// Loader walks repository trees and downloads their text files.
type Loader struct {
	sources     SourceFunc
	concurrency int
	maxFileSize int
	logger      *slog.Logger
}

// New creates a Loader.
func New(sources SourceFunc, opts Options) *Loader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		sources:     sources,
		concurrency: opts.Concurrency,
		maxFileSize: opts.MaxFileSize,
		logger:      opts.Logger,
	}
}

// Load returns every non-ignored text file of the repository at branch,
// sorted by path. An empty branch resolves to the default branch. Any
// failure aborts the load with a *RepositoryLoadError.
func (l *Loader) Load(ctx context.Context, repoURL, token, branch string) ([]Document, error) {
	ref, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, &RepositoryLoadError{Repo: repoURL, Err: err}
	}
	src := l.sources(token)
	logger := l.logger.With("repo", ref.String())

	if branch == "" {
		branch, err = src.GetDefaultBranch(ctx, ref.Owner, ref.Name)
		if err != nil {
			return nil, &RepositoryLoadError{Repo: ref.String(), Err: err}
		}
	}

	entries, err := src.GetTree(ctx, ref.Owner, ref.Name, branch)
	if err != nil {
		return nil, &RepositoryLoadError{Repo: ref.String(), Err: err}
	}

	var wanted []github.TreeEntry
	for _, e := range entries {
		if Ignored(e.Path) {
			continue
		}
		if e.Size > l.maxFileSize {
			logger.Debug("skipping large file", "path", e.Path, "size", e.Size)
			continue
		}
		wanted = append(wanted, e)
	}

	docs := make([]*Document, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, e := range wanted {
		g.Go(func() error {
			data, err := src.GetBlob(gctx, ref.Owner, ref.Name, e.SHA)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", e.Path, err)
			}
			if !isText(data) {
				logger.Warn("skipping binary file", "path", e.Path)
				return nil
			}
			docs[i] = &Document{Path: e.Path, Content: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &RepositoryLoadError{Repo: ref.String(), Err: err}
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	logger.Info("repository loaded", "branch", branch, "files", len(out), "listed", len(entries))
	return out, nil
}

// Ignored reports whether a repository path is excluded from loading.
func Ignored(p string) bool {
	dir, name := path.Split(p)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if ignoredDirs[seg] {
			return true
		}
	}
	for _, pattern := range ignoredNames {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isText(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) < 0
}
