// Package notify posts ingestion outcomes to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Report describes the outcome of one ingestion run.
type Report struct {
	ProjectID string
	Name      string
	RepoURL   string
	Succeeded bool
	Files     int
	Commits   int
	Error     string
	Duration  time.Duration
}

// Notifier sends notifications about finished ingestion runs.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends the report to all configured notifiers. It logs errors from
// individual notifiers, continues to the rest and returns the last error.
func (m *MultiNotifier) Notify(ctx context.Context, report Report) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			slog.Warn("notifier error", "project", report.ProjectID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier from configured webhook URLs. Either URL
// may be empty; with neither, it returns nil.
func NewNotifier(slackURL, discordURL string) Notifier {
	var ns []Notifier
	if slackURL != "" {
		ns = append(ns, NewSlackNotifier(slackURL))
	}
	if discordURL != "" {
		ns = append(ns, NewDiscordNotifier(discordURL))
	}
	switch len(ns) {
	case 0:
		return nil
	case 1:
		return ns[0]
	default:
		return NewMultiNotifier(ns...)
	}
}

func headline(r Report) string {
	if r.Succeeded {
		return fmt.Sprintf("Ingestion finished: %s", r.Name)
	}
	return fmt.Sprintf("Ingestion failed: %s", r.Name)
}
