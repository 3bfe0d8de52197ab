package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileReference is a file used as context for an answer.
type FileReference struct {
	FileName   string `json:"fileName"`
	SourceCode string `json:"sourceCode"`
	Summary    string `json:"summary"`
}

// SavedQuestion is a question and answer a user chose to keep.
type SavedQuestion struct {
	ID             string
	ProjectID      string
	UserID         string
	Question       string
	Answer         string
	FileReferences []FileReference
	CreatedAt      time.Time
}

// SaveQuestion inserts a saved question. CreatedAt is set by the store.
func (d *DB) SaveQuestion(q *SavedQuestion) error {
	refs, err := json.Marshal(q.FileReferences)
	if err != nil {
		return fmt.Errorf("marshaling file references: %w", err)
	}
	q.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err = d.db.Exec(`
		INSERT INTO questions (id, project_id, user_id, question, answer, file_references, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.ProjectID, q.UserID, q.Question, q.Answer, string(refs), formatTime(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving question: %w", err)
	}
	return nil
}

// ListQuestions returns a project's saved questions newest first.
func (d *DB) ListQuestions(projectID string) ([]SavedQuestion, error) {
	rows, err := d.db.Query(`
		SELECT id, project_id, user_id, question, answer, file_references, created_at
		FROM questions WHERE project_id = ?
		ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	var out []SavedQuestion
	for rows.Next() {
		var q SavedQuestion
		var refs, createdAt string
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.UserID, &q.Question, &q.Answer, &refs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		if refs != "" {
			_ = json.Unmarshal([]byte(refs), &q.FileReferences)
		}
		q.CreatedAt = parseTime(createdAt)
		out = append(out, q)
	}
	return out, rows.Err()
}
