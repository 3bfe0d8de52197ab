package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/ad-itya07/Dionysus/internal/store"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestMessages(t *testing.T) {
	withoutColor(t)

	tests := []struct {
		name  string
		write func(*bytes.Buffer)
		want  string
	}{
		{"success", func(b *bytes.Buffer) { Successf(b, "ingested %d files", 3) }, "✓ ingested 3 files\n"},
		{"warning", func(b *bytes.Buffer) { Warnf(b, "low balance") }, "! low balance\n"},
		{"error", func(b *bytes.Buffer) { Errorf(b, "failed: %s", "boom") }, "✗ failed: boom\n"},
		{"info", func(b *bytes.Buffer) { Infof(b, "waiting") }, "waiting\n"},
		{"header", func(b *bytes.Buffer) { Header(b, "Status") }, "Status\n======\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.write(&buf)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestField(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	Field(&buf, "Progress", "40%")
	if !strings.HasPrefix(buf.String(), "Progress:") || !strings.HasSuffix(buf.String(), " 40%\n") {
		t.Errorf("unexpected field %q", buf.String())
	}
}

func TestStatusPlain(t *testing.T) {
	withoutColor(t)
	for _, s := range []store.Status{store.StatusPending, store.StatusInProgress, store.StatusCompleted, store.StatusFailed} {
		if got := Status(s); got != string(s) {
			t.Errorf("Status(%s) = %q", s, got)
		}
	}
}

func TestStatusColoured(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	if got := Status(store.StatusFailed); got == string(store.StatusFailed) || !strings.Contains(got, "FAILED") {
		t.Errorf("expected coloured status, got %q", got)
	}
}

func TestAgo(t *testing.T) {
	tests := map[time.Duration]string{
		0:                "just now",
		30 * time.Second: "30 sec ago",
		time.Minute:      "1 min ago",
		3 * time.Hour:    "3 hours ago",
		25 * time.Hour:   "1 day ago",
		72 * time.Hour:   "3 days ago",
	}
	for ago, want := range tests {
		if got := Ago(time.Now().Add(-ago)); got != want {
			t.Errorf("Ago(-%v) = %q, want %q", ago, got, want)
		}
	}
}
