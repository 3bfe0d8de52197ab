package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ad-itya07/Dionysus/internal/credits"
	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/store"
)

// CommitListLimit is how many commits ListCommits returns.
const CommitListLimit = 50

var (
	// ErrAlreadyQueued is returned when restarting a project that is
	// already waiting to run.
	ErrAlreadyQueued = errors.New("ingestion already queued")

	// ErrAlreadyRunning is returned when restarting a project whose run is
	// active in this process.
	ErrAlreadyRunning = errors.New("ingestion already running")

	// ErrInvalidMember is returned when adding a member without a user id.
	ErrInvalidMember = errors.New("member user id is required")
)

// CommitRefresher schedules a background commit refresh for a project.
type CommitRefresher interface {
	Request(projectID string)
}

// Status is the externally visible ingestion state of a project.
type Status struct {
	ProjectID          string       `json:"projectId"`
	Status             store.Status `json:"status"`
	Progress           int          `json:"progress"`
	FilesProcessed     int          `json:"filesProcessed"`
	FilesTotal         int          `json:"filesTotal"`
	CommitsProcessed   int          `json:"commitsProcessed"`
	CommitsTotal       int          `json:"commitsTotal"`
	ErrorMessage       string       `json:"errorMessage,omitempty"`
	CanAnswerQuestions bool         `json:"canAnswerQuestions"`
}

// Service is the entry point for creating, running and inspecting
// ingestions. Runs execute in the background, detached from the caller.
type Service struct {
	store     store.Store
	orch      *Orchestrator
	admission *credits.Admission
	refresher CommitRefresher
	logger    *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// NewService creates a Service. Background runs use baseCtx, so cancelling
// it stops them. refresher may be nil.
func NewService(baseCtx context.Context, st store.Store, orch *Orchestrator, admission *credits.Admission, refresher CommitRefresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		orch:      orch,
		admission: admission,
		refresher: refresher,
		logger:    logger,
		baseCtx:   baseCtx,
		running:   make(map[string]bool),
	}
}

// CheckRepository sizes a repository for userID. It returns the estimate
// and, when the balance is too low, a *credits.InsufficientCreditsError.
func (s *Service) CheckRepository(ctx context.Context, userID, repoURL, token string) (credits.Estimate, error) {
	return s.admission.Check(ctx, userID, repoURL, token)
}

// CreateProject checks the user's credits, creates a PENDING project,
// charges one credit per file and starts ingestion in the background.
func (s *Service) CreateProject(ctx context.Context, userID, name, repoURL, token string) (*store.Project, error) {
	ref, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	est, err := s.admission.Check(ctx, userID, repoURL, token)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = ref.Name
	}
	p := &store.Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		RepoURL:     repoURL,
		GitHubToken: token,
	}
	if err := s.store.CreateProject(p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if err := s.admission.Charge(userID, est.RequiredCredits); err != nil {
		if aerr := s.store.ArchiveProject(p.ID); aerr != nil {
			s.logger.Error("archiving uncharged project", "project", p.ID, "error", aerr)
		}
		return nil, err
	}

	s.logger.Info("project created", "project", p.ID, "repo", ref.String(), "files", est.FileCount)
	s.Start(p.ID)
	return p, nil
}

// Start runs ingestion for a PENDING project in the background. The run
// records its own outcome on the project; errors are only logged here.
func (s *Service) Start(projectID string) {
	s.mu.Lock()
	s.running[projectID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, projectID)
			s.mu.Unlock()
		}()

		if err := s.orch.Run(s.baseCtx, projectID); err != nil {
			s.logger.Error("background ingestion ended with error", "project", projectID, "error", err)
		}
	}()
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Status reports a project's ingestion state.
func (s *Service) Status(projectID string) (*Status, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	return &Status{
		ProjectID:          p.ID,
		Status:             p.Status,
		Progress:           p.Progress,
		FilesProcessed:     p.FilesProcessed,
		FilesTotal:         p.FilesTotal,
		CommitsProcessed:   p.CommitsProcessed,
		CommitsTotal:       p.CommitsTotal,
		ErrorMessage:       p.ErrorMessage,
		CanAnswerQuestions: p.Status == store.StatusCompleted,
	}, nil
}

// CanResume reports whether Restart would accept the project.
func (s *Service) CanResume(projectID string) (bool, error) {
	p, err := s.project(projectID)
	if err != nil {
		return false, err
	}
	return p.Status != store.StatusPending && !s.isRunning(projectID), nil
}

// Restart resets a FAILED, COMPLETED or stuck IN_PROGRESS project owned by
// userID and runs it again from the first stage.
func (s *Service) Restart(userID, projectID string) error {
	p, err := s.owned(userID, projectID)
	if err != nil {
		return err
	}
	if s.isRunning(projectID) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, projectID)
	}
	if p.Status == store.StatusPending {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, projectID)
	}

	ok, err := s.store.ResetIngestion(projectID, store.StatusFailed, store.StatusInProgress, store.StatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, projectID)
	}
	s.logger.Info("ingestion restarted", "project", projectID, "previous", p.Status)
	s.Start(projectID)
	return nil
}

// Archive soft-deletes a project owned by userID.
func (s *Service) Archive(userID, projectID string) error {
	if _, err := s.owned(userID, projectID); err != nil {
		return err
	}
	return s.store.ArchiveProject(projectID)
}

// Projects lists the non-archived projects userID is a member of, newest
// first.
func (s *Service) Projects(userID string) ([]store.Project, error) {
	return s.store.ListProjects(userID)
}

// ListCommits returns the project's newest commits and asks for a
// background refresh so later calls see new history.
func (s *Service) ListCommits(projectID string) ([]store.CommitRecord, error) {
	if _, err := s.project(projectID); err != nil {
		return nil, err
	}
	if s.refresher != nil {
		s.refresher.Request(projectID)
	}
	return s.store.ListCommits(projectID, CommitListLimit)
}

// Authorize reports ErrProjectNotFound unless projectID exists and userID
// is one of its members. Projects the caller cannot see are
// indistinguishable from missing ones.
func (s *Service) Authorize(userID, projectID string) error {
	p, err := s.project(projectID)
	if err != nil {
		return err
	}
	if userID != "" && p.UserID == userID {
		return nil
	}
	ok, err := s.store.IsMember(projectID, userID)
	if err != nil {
		return err
	}
	if userID == "" || !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}

// Members lists the users with access to a project userID can see.
func (s *Service) Members(userID, projectID string) ([]store.Member, error) {
	if err := s.Authorize(userID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(projectID)
}

// AddMember gives memberID access to a project owned by userID. Adding an
// existing member is a no-op.
func (s *Service) AddMember(userID, projectID, memberID string) error {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return ErrInvalidMember
	}
	if _, err := s.owned(userID, projectID); err != nil {
		return err
	}
	added, err := s.store.AddMember(projectID, memberID)
	if err != nil {
		return err
	}
	if added {
		s.logger.Info("project member added", "project", projectID, "member", memberID)
	}
	return nil
}

func (s *Service) project(projectID string) (*store.Project, error) {
	p, err := s.store.GetProject(projectID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.DeletedAt != nil) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return p, err
}

// owned loads a project and hides it from users other than its owner. An
// empty userID skips the check.
func (s *Service) owned(userID, projectID string) (*store.Project, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return p, nil
}

func (s *Service) isRunning(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[projectID]
}
