package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CommitRecord is a stored commit with its summary.
type CommitRecord struct {
	ID           int64
	ProjectID    string
	Hash         string
	Message      string
	AuthorName   string
	AuthorAvatar string
	CommittedAt  time.Time
	Summary      string
	CreatedAt    time.Time
}

// InsertCommits stores commits in one transaction, skipping any
// (project, hash) already present. It returns how many rows were inserted.
func (d *DB) InsertCommits(commits []CommitRecord) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning commit insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO commits (project_id, commit_hash, message, author_name, author_avatar, committed_at, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, commit_hash) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing commit insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	inserted := 0
	for _, c := range commits {
		res, err := stmt.Exec(
			c.ProjectID, c.Hash, c.Message, nullStr(c.AuthorName), nullStr(c.AuthorAvatar),
			formatTime(c.CommittedAt), c.Summary, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting commit %s: %w", c.Hash, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing commit insert: %w", err)
	}
	return inserted, nil
}

// CommitHashes returns the set of commit hashes stored for a project.
func (d *DB) CommitHashes(projectID string) (map[string]bool, error) {
	rows, err := d.db.Query(`SELECT commit_hash FROM commits WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying commit hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning commit hash: %w", err)
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// ListCommits returns a project's commits newest first. limit <= 0 returns
// all of them.
func (d *DB) ListCommits(projectID string, limit int) ([]CommitRecord, error) {
	query := `
		SELECT id, project_id, commit_hash, message, author_name, author_avatar, committed_at, summary, created_at
		FROM commits WHERE project_id = ?
		ORDER BY committed_at DESC, id`
	args := []interface{}{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commits: %w", err)
	}
	defer rows.Close()

	var commits []CommitRecord
	for rows.Next() {
		var c CommitRecord
		var author, avatar sql.NullString
		var committedAt, createdAt string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Hash, &c.Message, &author, &avatar, &committedAt, &c.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		c.AuthorName = author.String
		c.AuthorAvatar = avatar.String
		c.CommittedAt = parseTime(committedAt)
		c.CreatedAt = parseTime(createdAt)
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// CountCommits returns the number of stored commits for a project.
func (d *DB) CountCommits(projectID string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM commits WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting commits: %w", err)
	}
	return n, nil
}
