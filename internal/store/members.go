package store

import (
	"fmt"
	"time"
)

// Member is a user with access to a project.
type Member struct {
	ProjectID string
	UserID    string
	Owner     bool
	JoinedAt  time.Time
}

// AddMember gives userID access to a project. It reports false when the
// user already was a member.
func (d *DB) AddMember(projectID, userID string) (bool, error) {
	res, err := d.db.Exec(`
		INSERT OR IGNORE INTO project_members (project_id, user_id, joined_at) VALUES (?, ?, ?)`,
		projectID, userID, now(),
	)
	if err != nil {
		return false, fmt.Errorf("adding member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adding member: %w", err)
	}
	return n > 0, nil
}

// IsMember reports whether userID has access to a project.
func (d *DB) IsMember(projectID, userID string) (bool, error) {
	var n int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking member: %w", err)
	}
	return n > 0, nil
}

// ListMembers returns a project's members in the order they joined.
func (d *DB) ListMembers(projectID string) ([]Member, error) {
	rows, err := d.db.Query(`
		SELECT m.project_id, m.user_id, m.user_id = p.user_id, m.joined_at
		FROM project_members m JOIN projects p ON p.id = m.project_id
		WHERE m.project_id = ?
		ORDER BY m.joined_at, m.user_id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var joined string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Owner, &joined); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		m.JoinedAt = parseTime(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}
