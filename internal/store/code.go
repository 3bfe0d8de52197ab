package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CodeRecord is one chunk of a source file with its summary.
type CodeRecord struct {
	ID             int64
	ProjectID      string
	FileName       string
	ChunkIndex     int
	SourceCode     string
	Summary        string
	Embedding      []float32
	EmbeddingModel string
	CreatedAt      time.Time
}

// InsertCodeRecords stores records in one transaction, skipping any
// (project, file, chunk) that already exists. It returns how many rows were
// inserted.
func (d *DB) InsertCodeRecords(records []CodeRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning code insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO code_records (project_id, file_name, chunk_index, source_code, summary, embedding, embedding_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_name, chunk_index) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing code insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	inserted := 0
	for _, r := range records {
		res, err := stmt.Exec(
			r.ProjectID, r.FileName, r.ChunkIndex, r.SourceCode, r.Summary,
			encodeVector(r.Embedding), nullStr(r.EmbeddingModel), ts,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting code record %s#%d: %w", r.FileName, r.ChunkIndex, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing code insert: %w", err)
	}
	return inserted, nil
}

// ListCodeRecords returns a project's records ordered by file and chunk.
// limit <= 0 returns all of them.
func (d *DB) ListCodeRecords(projectID string, limit int) ([]CodeRecord, error) {
	query := `
		SELECT id, project_id, file_name, chunk_index, source_code, summary, embedding, embedding_model, created_at
		FROM code_records WHERE project_id = ?
		ORDER BY file_name, chunk_index`
	args := []interface{}{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying code records: %w", err)
	}
	defer rows.Close()

	var records []CodeRecord
	for rows.Next() {
		r, err := scanCodeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// CountCodeRecords returns the number of stored chunks for a project.
func (d *DB) CountCodeRecords(projectID string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM code_records WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting code records: %w", err)
	}
	return n, nil
}

func scanCodeRecord(s scanner) (*CodeRecord, error) {
	var r CodeRecord
	var embedding []byte
	var model sql.NullString
	var createdAt string

	err := s.Scan(&r.ID, &r.ProjectID, &r.FileName, &r.ChunkIndex, &r.SourceCode, &r.Summary, &embedding, &model, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scanning code record: %w", err)
	}
	r.Embedding = decodeVector(embedding)
	r.EmbeddingModel = model.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
