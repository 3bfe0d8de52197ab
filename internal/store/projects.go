package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the ingestion state of a project.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Project is one linked repository and its ingestion state.
type Project struct {
	ID               string
	UserID           string
	Name             string
	RepoURL          string
	GitHubToken      string
	Status           Status
	Progress         int
	FilesProcessed   int
	FilesTotal       int
	CommitsProcessed int
	CommitsTotal     int
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	DeletedAt        *time.Time
}

// StageUpdate carries the progress written at the end of an ingestion
// stage. Nil counters leave the stored value unchanged.
type StageUpdate struct {
	Progress         int
	FilesProcessed   *int
	FilesTotal       *int
	CommitsProcessed *int
	CommitsTotal     *int
}

const projectColumns = `id, user_id, name, repo_url, github_token, status, progress,
	files_processed, files_total, commits_processed, commits_total, error_message,
	created_at, started_at, completed_at, deleted_at`

// CreateProject inserts a new project in PENDING state and makes its owner
// the first member. CreatedAt is set by the store.
func (d *DB) CreateProject(p *Project) error {
	p.Status = StatusPending
	p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO projects (id, user_id, name, repo_url, github_token, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.RepoURL, nullStr(p.GitHubToken), string(p.Status), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO project_members (project_id, user_id, joined_at) VALUES (?, ?, ?)`,
		p.ID, p.UserID, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("adding project owner: %w", err)
	}
	return tx.Commit()
}

// GetProject retrieves a project by ID, including archived ones.
func (d *DB) GetProject(id string) (*Project, error) {
	row := d.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProjects returns the non-archived projects userID is a member of,
// newest first.
func (d *DB) ListProjects(userID string) ([]Project, error) {
	rows, err := d.db.Query(`
		SELECT `+projectColumns+` FROM projects
		WHERE id IN (SELECT project_id FROM project_members WHERE user_id = ?)
			AND deleted_at IS NULL
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

// ListActiveProjects returns every non-archived project whose ingestion
// completed, for background commit refresh.
func (d *DB) ListActiveProjects() ([]Project, error) {
	rows, err := d.db.Query(`
		SELECT `+projectColumns+` FROM projects
		WHERE deleted_at IS NULL AND status = ?
		ORDER BY created_at`,
		string(StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active projects: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

// ArchiveProject soft-deletes a project. Child records stay addressable.
func (d *DB) ArchiveProject(id string) error {
	res, err := d.db.Exec(`UPDATE projects SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now(), id)
	if err != nil {
		return fmt.Errorf("archiving project: %w", err)
	}
	return requireAffected(res, "project "+id)
}

// MarkStarted moves a PENDING project to IN_PROGRESS. It reports false if
// the project was not PENDING, so only one run can claim it.
func (d *DB) MarkStarted(id string) (bool, error) {
	res, err := d.db.Exec(`
		UPDATE projects SET status = ?, progress = 0, started_at = ?, completed_at = NULL, error_message = NULL
		WHERE id = ? AND status = ?`,
		string(StatusInProgress), now(), id, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("marking project started: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking project started: %w", err)
	}
	return n == 1, nil
}

// UpdateStage records stage progress for a running project. Progress never
// decreases.
func (d *DB) UpdateStage(id string, u StageUpdate) error {
	_, err := d.db.Exec(`
		UPDATE projects SET
			progress = MAX(progress, ?),
			files_processed = COALESCE(?, files_processed),
			files_total = COALESCE(?, files_total),
			commits_processed = COALESCE(?, commits_processed),
			commits_total = COALESCE(?, commits_total)
		WHERE id = ? AND status = ?`,
		u.Progress, nullInt(u.FilesProcessed), nullInt(u.FilesTotal), nullInt(u.CommitsProcessed), nullInt(u.CommitsTotal),
		id, string(StatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("updating stage: %w", err)
	}
	return nil
}

// MarkCompleted finishes a run: COMPLETED, progress 100, completion time.
func (d *DB) MarkCompleted(id string) error {
	_, err := d.db.Exec(`
		UPDATE projects SET status = ?, progress = 100, completed_at = ?, error_message = NULL
		WHERE id = ?`,
		string(StatusCompleted), now(), id,
	)
	if err != nil {
		return fmt.Errorf("marking project completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed run. The completion time is set so callers
// can tell a finished failure from a run still in progress.
func (d *DB) MarkFailed(id, message string) error {
	_, err := d.db.Exec(`
		UPDATE projects SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(StatusFailed), message, now(), id,
	)
	if err != nil {
		return fmt.Errorf("marking project failed: %w", err)
	}
	return nil
}

// ResetIngestion returns a project in one of the given states to PENDING
// with zeroed progress and counters. It reports false when the project was
// in some other state.
func (d *DB) ResetIngestion(id string, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []interface{}{string(StatusPending), id}
	placeholders := ""
	for i, s := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(s))
	}
	res, err := d.db.Exec(`
		UPDATE projects SET status = ?, progress = 0,
			files_processed = 0, files_total = 0, commits_processed = 0, commits_total = 0,
			error_message = NULL, started_at = NULL, completed_at = NULL
		WHERE id = ? AND deleted_at IS NULL AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("resetting ingestion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resetting ingestion: %w", err)
	}
	return n == 1, nil
}

func collectProjects(rows *sql.Rows) ([]Project, error) {
	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var status, createdAt string
	var token, errMsg, startedAt, completedAt, deletedAt sql.NullString

	err := s.Scan(
		&p.ID, &p.UserID, &p.Name, &p.RepoURL, &token, &status, &p.Progress,
		&p.FilesProcessed, &p.FilesTotal, &p.CommitsProcessed, &p.CommitsTotal, &errMsg,
		&createdAt, &startedAt, &completedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	p.Status = Status(status)
	p.GitHubToken = token.String
	p.ErrorMessage = errMsg.String
	p.CreatedAt = parseTime(createdAt)
	p.StartedAt = parseNullTime(startedAt)
	p.CompletedAt = parseNullTime(completedAt)
	p.DeletedAt = parseNullTime(deletedAt)
	return &p, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
