package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrInsufficientBalance is returned by DeductCredits when the balance is
// lower than the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// EnsureUser creates a user with the given starting balance if it does not
// exist yet.
func (d *DB) EnsureUser(id string, credits int) error {
	_, err := d.db.Exec(`
		INSERT INTO users (id, credits, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, credits, now(),
	)
	if err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	return nil
}

// GetCredits returns a user's credit balance.
func (d *DB) GetCredits(userID string) (int, error) {
	var credits int
	err := d.db.QueryRow(`SELECT credits FROM users WHERE id = ?`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return 0, fmt.Errorf("getting credits: %w", err)
	}
	return credits, nil
}

// AddCredits increases a user's balance, creating the user if needed.
func (d *DB) AddCredits(userID string, amount int) error {
	_, err := d.db.Exec(`
		INSERT INTO users (id, credits, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET credits = credits + excluded.credits`,
		userID, amount, now(),
	)
	if err != nil {
		return fmt.Errorf("adding credits: %w", err)
	}
	return nil
}

// DeductCredits atomically lowers a user's balance by amount, failing with
// ErrInsufficientBalance instead of going negative.
func (d *DB) DeductCredits(userID string, amount int) error {
	res, err := d.db.Exec(`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`, amount, userID, amount)
	if err != nil {
		return fmt.Errorf("deducting credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deducting credits: %w", err)
	}
	if n == 0 {
		if _, err := d.GetCredits(userID); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}
