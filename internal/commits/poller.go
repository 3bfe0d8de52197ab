package commits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ad-itya07/Dionysus/internal/store"
)

// Poller keeps the commit history of completed projects up to date. It
// polls every active project on a fixed interval and also on request.
type Poller struct {
	store     store.Store
	processor *Processor
	logger    *slog.Logger
	requests  chan string

	mu      sync.Mutex
	running map[string]bool
}

// NewPoller creates a Poller.
func NewPoller(st store.Store, processor *Processor, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:     st,
		processor: processor,
		logger:    logger.With("component", "commit-poller"),
		requests:  make(chan string, 64),
		running:   make(map[string]bool),
	}
}

// Request asks the poller to refresh one project soon. It never blocks;
// requests beyond the queue capacity are dropped.
func (p *Poller) Request(projectID string) {
	select {
	case p.requests <- projectID:
	default:
		p.logger.Debug("poll request dropped", "project", projectID)
	}
}

// Run polls all active projects immediately and then every interval, and
// serves Request calls, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting commit poll loop", "interval", interval)

	if err := p.PollAll(ctx); err != nil {
		p.logger.Warn("initial poll error", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := p.PollAll(ctx); err != nil {
				p.logger.Warn("poll error", "error", err)
			}
		case id := <-p.requests:
			if _, err := p.PollProject(ctx, id); err != nil {
				p.logger.Warn("requested poll failed", "project", id, "error", err)
			}
		}
	}
}

// PollAll refreshes every completed, non-archived project. Failures for
// one project do not stop the others.
func (p *Poller) PollAll(ctx context.Context) error {
	projects, err := p.store.ListActiveProjects()
	if err != nil {
		return fmt.Errorf("listing active projects: %w", err)
	}

	var errs []error
	for i := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.poll(ctx, &projects[i]); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", projects[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

// PollProject refreshes one project if it has finished ingestion.
func (p *Poller) PollProject(ctx context.Context, projectID string) (Result, error) {
	project, err := p.store.GetProject(projectID)
	if err != nil {
		return Result{}, err
	}
	if project.DeletedAt != nil || project.Status != store.StatusCompleted {
		return Result{}, nil
	}
	return p.poll(ctx, project)
}

func (p *Poller) poll(ctx context.Context, project *store.Project) (Result, error) {
	p.mu.Lock()
	if p.running[project.ID] {
		p.mu.Unlock()
		return Result{}, nil
	}
	p.running[project.ID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.running, project.ID)
		p.mu.Unlock()
	}()

	return p.processor.Process(ctx, project)
}
