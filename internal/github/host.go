package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/sync/errgroup"

	"github.com/ad-itya07/Dionysus/internal/retry"
)

const (
	// commitsPerPage is the page size used when listing commits.
	commitsPerPage = 100

	// countConcurrency bounds simultaneous directory listings in CountFiles.
	countConcurrency = 8

	// validateAttempts is the number of access checks before a repository is
	// considered inaccessible.
	validateAttempts = 2
)

// HostOptions configures a Host.
type HostOptions struct {
	Budget Budget
	Policy retry.Policy
	Logger *slog.Logger
}

// Host wraps the GitHub REST API for one credential. Every call waits on
// the credential's rate limit budget, records exhausted quotas reported in
// response headers, and retries under the configured policy.
type Host struct {
	client *gogithub.Client
	key    string
	budget Budget
	policy retry.Policy
	logger *slog.Logger
	sem    chan struct{}
}

// NewHost wraps client. key identifies the credential for budget sharing.
func NewHost(client *gogithub.Client, key string, opts HostOptions) *Host {
	if opts.Budget == nil {
		opts.Budget = NewLocalBudget()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy
	}
	return &Host{
		client: client,
		key:    key,
		budget: opts.Budget,
		policy: opts.Policy,
		logger: opts.Logger.With("component", "github", "credential", key),
		sem:    make(chan struct{}, countConcurrency),
	}
}

// Client returns the underlying go-github client.
func (h *Host) Client() *gogithub.Client {
	return h.client
}

// call runs fn under the retry policy. Before each attempt it waits on the
// budget; afterwards it records any exhausted quota so the next request
// sleeps until the reset clock.
func (h *Host) call(ctx context.Context, op string, policy retry.Policy, fn func() (*gogithub.Response, error)) error {
	err := policy.Do(ctx, func() error {
		if err := h.budget.Wait(ctx, h.key); err != nil {
			return retry.Permanent(err)
		}

		resp, err := fn()
		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}

		if q, ok := parseQuota(httpResp); ok && q.exhausted() {
			until := q.resumeAt()
			h.logger.Info("rate limit exhausted, pausing", "op", op, "resume_at", until)
			_ = h.budget.Pause(ctx, h.key, until)
		}

		if err == nil {
			return nil
		}
		switch classify(httpResp) {
		case rateLimited:
			_ = h.budget.Pause(ctx, h.key, rateLimitResume(httpResp, time.Now()))
			return err
		case permanent:
			return retry.Permanent(err)
		default:
			return err
		}
	}, func(attempt int, err error, wait time.Duration) {
		h.logger.Warn("github call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%s: %w: %w", op, ErrHostUnavailable, err)
	}
	return nil
}

// ListAllCommits pages through the history of the default branch newest
// first and stops once limit commits are collected. limit <= 0 means all.
func (h *Host) ListAllCommits(ctx context.Context, owner, repo string, limit int) ([]Commit, error) {
	opts := &gogithub.CommitsListOptions{
		ListOptions: gogithub.ListOptions{PerPage: commitsPerPage},
	}

	var out []Commit
	for {
		var page []*gogithub.RepositoryCommit
		var resp *gogithub.Response
		err := h.call(ctx, "list commits", h.policy, func() (*gogithub.Response, error) {
			var err error
			page, resp, err = h.client.Repositories.ListCommits(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			// An empty repository has no history yet.
			if resp != nil && resp.StatusCode == http.StatusConflict {
				return out, nil
			}
			return nil, err
		}

		for _, c := range page {
			out = append(out, convertCommit(c))
		}

		if limit > 0 && len(out) >= limit {
			out = out[:limit]
			break
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func convertCommit(c *gogithub.RepositoryCommit) Commit {
	commit := Commit{
		Hash:    c.GetSHA(),
		Message: c.GetCommit().GetMessage(),
	}
	if a := c.GetCommit().GetAuthor(); a != nil {
		commit.AuthorName = a.GetName()
		commit.Date = a.GetDate().Time
	}
	if c.Author != nil {
		commit.AuthorAvatar = c.Author.GetAvatarURL()
	}
	return commit
}

// CountFiles counts the blobs under path by walking directory listings in
// parallel. No file content is downloaded.
func (h *Host) CountFiles(ctx context.Context, owner, repo, path string) (int, error) {
	var entries []*gogithub.RepositoryContent
	err := h.limited(ctx, func() error {
		return h.call(ctx, "list contents", h.policy, func() (*gogithub.Response, error) {
			file, dir, resp, err := h.client.Repositories.GetContents(ctx, owner, repo, path, nil)
			if file != nil {
				entries = []*gogithub.RepositoryContent{file}
			} else {
				entries = dir
			}
			return resp, err
		})
	})
	if err != nil {
		return 0, err
	}

	var (
		mu    sync.Mutex
		count int
	)
	files := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		switch e.GetType() {
		case "file":
			files++
		case "dir":
			sub := e.GetPath()
			g.Go(func() error {
				n, err := h.CountFiles(gctx, owner, repo, sub)
				if err != nil {
					return err
				}
				mu.Lock()
				count += n
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return count + files, nil
}

// limited bounds the number of in-flight listing calls without holding a
// slot while waiting on subdirectories.
func (h *Host) limited(ctx context.Context, fn func() error) error {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-h.sem }()
	return fn()
}

// GetDefaultBranch returns the repository's default branch name.
func (h *Host) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var branch string
	err := h.call(ctx, "get repository", h.policy, func() (*gogithub.Response, error) {
		r, resp, err := h.client.Repositories.Get(ctx, owner, repo)
		if err == nil {
			branch = r.GetDefaultBranch()
		}
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if branch == "" {
		branch = "main"
	}
	return branch, nil
}

// GetCommitDiff fetches the unified diff of one commit.
func (h *Host) GetCommitDiff(ctx context.Context, owner, repo, hash string) (string, error) {
	var diff string
	err := h.call(ctx, "get commit diff", h.policy, func() (*gogithub.Response, error) {
		d, resp, err := h.client.Repositories.GetCommitRaw(ctx, owner, repo, hash, gogithub.RawOptions{Type: gogithub.Diff})
		diff = d
		return resp, err
	})
	return diff, err
}

// GetCommitMessage returns the full message of one commit.
func (h *Host) GetCommitMessage(ctx context.Context, owner, repo, hash string) (string, error) {
	var msg string
	err := h.call(ctx, "get commit", h.policy, func() (*gogithub.Response, error) {
		c, resp, err := h.client.Repositories.GetCommit(ctx, owner, repo, hash, nil)
		if err == nil {
			msg = c.GetCommit().GetMessage()
		}
		return resp, err
	})
	return msg, err
}

// ValidateRepoAccess reports whether the repository exists and is visible
// to the credential. Failures are logged and reported as false.
func (h *Host) ValidateRepoAccess(ctx context.Context, owner, repo string) bool {
	policy := h.policy
	policy.MaxAttempts = validateAttempts
	err := h.call(ctx, "validate repository", policy, func() (*gogithub.Response, error) {
		_, resp, err := h.client.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		h.logger.Warn("repository not accessible", "repo", owner+"/"+repo, "error", err)
		return false
	}
	return true
}

// GetTree lists every blob reachable from ref.
func (h *Host) GetTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	var tree *gogithub.Tree
	err := h.call(ctx, "get tree", h.policy, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		tree, resp, err = h.client.Git.GetTree(ctx, owner, repo, ref, true)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if tree.GetTruncated() {
		h.logger.Warn("git tree truncated by GitHub, some files will be missing", "repo", owner+"/"+repo, "ref", ref)
	}

	var out []TreeEntry
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		out = append(out, TreeEntry{Path: e.GetPath(), SHA: e.GetSHA(), Size: e.GetSize()})
	}
	return out, nil
}

// GetBlob downloads the raw content of a blob.
func (h *Host) GetBlob(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	var data []byte
	err := h.call(ctx, "get blob", h.policy, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		data, resp, err = h.client.Git.GetBlobRaw(ctx, owner, repo, sha)
		return resp, err
	})
	return data, err
}
