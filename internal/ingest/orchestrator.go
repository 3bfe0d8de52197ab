// Package ingest runs repository ingestion: validate, load, summarize,
// chunk, store, then process commits, tracking progress on the project.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ad-itya07/Dionysus/internal/chunk"
	"github.com/ad-itya07/Dionysus/internal/commits"
	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/loader"
	"github.com/ad-itya07/Dionysus/internal/metrics"
	"github.com/ad-itya07/Dionysus/internal/notify"
	"github.com/ad-itya07/Dionysus/internal/provider"
	"github.com/ad-itya07/Dionysus/internal/pubsub"
	"github.com/ad-itya07/Dionysus/internal/retry"
	"github.com/ad-itya07/Dionysus/internal/store"
	"github.com/ad-itya07/Dionysus/internal/summarize"
)

// Progress written at the end of each stage. File summarization advances
// linearly between progressLoaded and progressSummarized.
const (
	progressValidated  = 10
	progressLoaded     = 20
	progressSummarized = 60
	progressStored     = 80
	progressCommits    = 95
	progressDone       = 100

	DefaultPauseEvery    = 10
	DefaultPauseDuration = time.Second
)

var (
	// ErrIngestionAborted wraps the error that stopped a run.
	ErrIngestionAborted = errors.New("ingestion aborted")

	// ErrProjectNotFound is returned for unknown or archived projects.
	ErrProjectNotFound = errors.New("project not found")

	// ErrNotPending is returned when a run is started for a project that
	// is not waiting to be ingested.
	ErrNotPending = errors.New("project is not pending")
)

// AccessValidator checks whether a repository is reachable.
type AccessValidator interface {
	ValidateRepoAccess(ctx context.Context, owner, repo string) bool
}

// ValidatorFunc returns an AccessValidator for the credential token.
type ValidatorFunc func(token string) AccessValidator

// HostValidator adapts github.Hosts to a ValidatorFunc.
func HostValidator(hosts *github.Hosts) ValidatorFunc {
	return func(token string) AccessValidator {
		return hosts.For(token)
	}
}

// RepositoryLoader reads every file of a repository.
type RepositoryLoader interface {
	Load(ctx context.Context, repoURL, token, branch string) ([]loader.Document, error)
}

// FileSummarizer summarizes one file. It never fails. tracker holds the
// summaries accepted earlier in the same run.
type FileSummarizer interface {
	File(ctx context.Context, tracker *summarize.Tracker, fileName, code string) string
}

// CommitProcessor stores a project's unseen commits.
type CommitProcessor interface {
	Process(ctx context.Context, project *store.Project) (commits.Result, error)
}

// ProgressEvent is published whenever a run's state changes.
type ProgressEvent struct {
	ProjectID        string       `json:"projectId"`
	Stage            string       `json:"stage"`
	Status           store.Status `json:"status"`
	Progress         int          `json:"progress"`
	FilesProcessed   int          `json:"filesProcessed"`
	FilesTotal       int          `json:"filesTotal"`
	CommitsProcessed int          `json:"commitsProcessed"`
	CommitsTotal     int          `json:"commitsTotal"`
	Error            string       `json:"error,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Embedder, Broker and
// Notifier are optional.
type Deps struct {
	Store          store.Store
	Validators     ValidatorFunc
	Loader         RepositoryLoader
	Summarizer     FileSummarizer
	Commits        CommitProcessor
	Embedder       provider.Embedder
	EmbeddingModel string
	Broker         *pubsub.Broker[ProgressEvent]
	Notifier       notify.Notifier
	Logger         *slog.Logger
}

// Options tunes an Orchestrator.
type Options struct {
	Chunk         chunk.Options
	PauseEvery    int
	PauseDuration time.Duration
	EmbedPolicy   retry.Policy
}

// Orchestrator runs the ingestion state machine for one project at a time.
// It is safe to run several projects concurrently.
type Orchestrator struct {
	deps Deps
	opts Options
}

// NewOrchestrator creates an Orchestrator. A negative PauseDuration
// disables pauses.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.PauseEvery <= 0 {
		opts.PauseEvery = DefaultPauseEvery
	}
	if opts.PauseDuration == 0 {
		opts.PauseDuration = DefaultPauseDuration
	}
	if opts.EmbedPolicy.MaxAttempts == 0 {
		opts.EmbedPolicy = retry.DefaultPolicy
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// run tracks the state of one ingestion run.
type run struct {
	project *store.Project
	ref     github.RepoRef
	logger  *slog.Logger
	event   ProgressEvent
	seen    *summarize.Tracker
}

// Run ingests a PENDING project. Every exit path leaves the project
// COMPLETED or FAILED; a failed run returns an error wrapping
// ErrIngestionAborted.
func (o *Orchestrator) Run(ctx context.Context, projectID string) error {
	project, err := o.deps.Store.GetProject(projectID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return err
	}

	claimed, err := o.deps.Store.MarkStarted(projectID)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, projectID, project.Status)
	}

	r := &run{
		project: project,
		logger:  o.deps.Logger.With("project", projectID, "repo", project.RepoURL),
		event:   ProgressEvent{ProjectID: projectID, Stage: "started", Status: store.StatusInProgress},
	}
	o.publish(pubsub.Progress, r.event)
	r.logger.Info("ingestion started")

	start := time.Now()
	err = o.stages(ctx, r)
	elapsed := time.Since(start)

	if err != nil {
		return o.fail(r, err, elapsed)
	}

	if err := o.deps.Store.MarkCompleted(projectID); err != nil {
		return o.fail(r, err, elapsed)
	}
	r.event.Stage = "completed"
	r.event.Status = store.StatusCompleted
	r.event.Progress = progressDone
	o.publish(pubsub.Completed, r.event)
	metrics.RecordIngestion("completed", elapsed)
	r.logger.Info("ingestion completed", "files", r.event.FilesTotal, "commits", r.event.CommitsTotal, "elapsed", elapsed)

	o.notify(notify.Report{
		ProjectID: projectID,
		Name:      project.Name,
		RepoURL:   project.RepoURL,
		Succeeded: true,
		Files:     r.event.FilesTotal,
		Commits:   r.event.CommitsTotal,
		Duration:  elapsed,
	})
	return nil
}

func (o *Orchestrator) fail(r *run, cause error, elapsed time.Duration) error {
	msg := cause.Error()
	if err := o.deps.Store.MarkFailed(r.project.ID, msg); err != nil {
		r.logger.Error("recording failure", "error", err)
	}
	r.event.Stage = "failed"
	r.event.Status = store.StatusFailed
	r.event.Error = msg
	o.publish(pubsub.Failed, r.event)
	metrics.RecordIngestion("failed", elapsed)
	r.logger.Error("ingestion failed", "error", cause, "elapsed", elapsed)

	o.notify(notify.Report{
		ProjectID: r.project.ID,
		Name:      r.project.Name,
		RepoURL:   r.project.RepoURL,
		Error:     msg,
		Duration:  elapsed,
	})
	return fmt.Errorf("%w: %w", ErrIngestionAborted, cause)
}

// stages runs every stage in order. A panic inside a stage is turned into
// an error so the run still ends FAILED.
func (o *Orchestrator) stages(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during ingestion: %v", p)
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"validate", o.validate},
		{"files", o.summarizeFiles},
		{"commits", o.processCommits},
	}
	for _, s := range steps {
		t := time.Now()
		if err := s.fn(ctx, r); err != nil {
			return err
		}
		metrics.ObserveStage(s.name, time.Since(t))
	}
	return nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run) error {
	ref, err := github.ParseRepoURL(r.project.RepoURL)
	if err != nil {
		return err
	}
	r.ref = ref
	if !o.deps.Validators(r.project.GitHubToken).ValidateRepoAccess(ctx, ref.Owner, ref.Name) {
		return fmt.Errorf("repository %s is not accessible", r.project.RepoURL)
	}
	return o.advance(r, "validated", progressValidated, nil)
}

// summarizeFiles loads the repository, summarizes and chunks each file one
// at a time, then stores every chunk.
func (o *Orchestrator) summarizeFiles(ctx context.Context, r *run) error {
	docs, err := o.deps.Loader.Load(ctx, r.project.RepoURL, r.project.GitHubToken, "")
	if err != nil {
		return err
	}
	total := len(docs)
	r.event.FilesTotal = total
	if err := o.advance(r, "loaded", progressLoaded, func(u *store.StageUpdate) {
		u.FilesTotal = &total
		u.FilesProcessed = intp(0)
	}); err != nil {
		return err
	}

	r.seen = summarize.NewTracker()
	var records []store.CodeRecord
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		summary := o.summarize(ctx, r, doc)
		vec := o.embed(ctx, r, doc.Path, summary)
		for _, c := range chunk.Split(doc.Content, o.opts.Chunk) {
			rec := store.CodeRecord{
				ProjectID:  r.project.ID,
				FileName:   doc.Path,
				ChunkIndex: c.Index,
				SourceCode: c.Content,
				Summary:    summary,
			}
			if vec != nil {
				rec.Embedding = vec
				rec.EmbeddingModel = o.deps.EmbeddingModel
			}
			records = append(records, rec)
		}

		done := i + 1
		r.event.FilesProcessed = done
		progress := progressLoaded + (progressSummarized-progressLoaded)*done/total
		if err := o.advance(r, "summarizing", progress, func(u *store.StageUpdate) {
			u.FilesProcessed = &done
		}); err != nil {
			return err
		}

		if done%o.opts.PauseEvery == 0 && done < total {
			if err := pause(ctx, o.opts.PauseDuration); err != nil {
				return err
			}
		}
	}

	inserted, err := o.deps.Store.InsertCodeRecords(records)
	if err != nil {
		return fmt.Errorf("storing code records: %w", err)
	}
	metrics.AddCodeRecords(inserted)
	r.logger.Info("code records stored", "chunks", len(records), "inserted", inserted)
	return o.advance(r, "stored", progressStored, nil)
}

// summarize isolates one file: a panic in the summarizer yields the
// structural fallback instead of aborting the run.
func (o *Orchestrator) summarize(ctx context.Context, r *run, doc loader.Document) (summary string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("summarizer panicked, using fallback", "file", doc.Path, "panic", p)
			summary = fallbackSummary(doc)
		}
	}()
	summary = o.deps.Summarizer.File(ctx, r.seen, doc.Path, doc.Content)
	if summary == "" {
		summary = fallbackSummary(doc)
	}
	return summary
}

// embed returns a validated embedding of the summary, or nil. Embedding
// failures never fail the run.
func (o *Orchestrator) embed(ctx context.Context, r *run, path, summary string) []float32 {
	if o.deps.Embedder == nil {
		return nil
	}
	var vec []float32
	err := o.opts.EmbedPolicy.Do(ctx, func() error {
		v, err := o.deps.Embedder.Embed(ctx, summary)
		if err != nil {
			return err
		}
		if err := provider.ValidateEmbedding(v, provider.EmbeddingDimensions); err != nil {
			return err
		}
		vec = v
		return nil
	}, nil)
	if err != nil {
		metrics.RecordEmbedError()
		r.logger.Warn("embedding failed, storing without vector", "file", path, "error", err)
		return nil
	}
	return vec
}

func (o *Orchestrator) processCommits(ctx context.Context, r *run) error {
	res, err := o.deps.Commits.Process(ctx, r.project)
	if err != nil {
		return fmt.Errorf("processing commits: %w", err)
	}
	n := res.Fetched
	r.event.CommitsProcessed = n
	r.event.CommitsTotal = n
	return o.advance(r, "commits", progressCommits, func(u *store.StageUpdate) {
		u.CommitsProcessed = &n
		u.CommitsTotal = &n
	})
}

// advance persists stage progress and publishes it.
func (o *Orchestrator) advance(r *run, stage string, progress int, set func(*store.StageUpdate)) error {
	u := store.StageUpdate{Progress: progress}
	if set != nil {
		set(&u)
	}
	if err := o.deps.Store.UpdateStage(r.project.ID, u); err != nil {
		return err
	}
	r.event.Stage = stage
	r.event.Progress = max(r.event.Progress, progress)
	o.publish(pubsub.Progress, r.event)
	r.logger.Debug("stage progress", "stage", stage, "progress", progress)
	return nil
}

func (o *Orchestrator) publish(t pubsub.EventType, e ProgressEvent) {
	if o.deps.Broker != nil {
		o.deps.Broker.Publish(t, e)
	}
}

func (o *Orchestrator) notify(report notify.Report) {
	if o.deps.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.deps.Notifier.Notify(ctx, report); err != nil {
		o.deps.Logger.Warn("sending notification", "project", report.ProjectID, "error", err)
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fallbackSummary(doc loader.Document) string {
	return summarize.FileFallback(doc.Path, doc.Content)
}

func intp(n int) *int { return &n }
