package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ad-itya07/Dionysus/internal/retry"
)

// mockCompleter returns responses in order, repeating the last one.
type mockCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

type mockSource struct {
	diff       string
	diffErr    error
	message    string
	messageErr error
	token      string
}

func (m *mockSource) GetCommitDiff(_ context.Context, owner, repo, hash string) (string, error) {
	return m.diff, m.diffErr
}

func (m *mockSource) GetCommitMessage(_ context.Context, owner, repo, hash string) (string, error) {
	return m.message, m.messageErr
}

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newTestSummarizer(c *mockCompleter, src *mockSource) *Summarizer {
	return New(Options{
		Completer: c,
		Sources: func(token string) CommitSource {
			src.token = token
			return src
		},
		Policy: fastPolicy,
	})
}

const twoFileDiff = `diff --git a/main.go b/main.go
index 1..2 100644
--- a/main.go
+++ b/main.go
@@ -1 +1 @@
-old
+new
diff --git a/util.go b/util.go
--- a/util.go
+++ b/util.go
@@ -1 +1 @@
+added
`

func TestCommitSummary(t *testing.T) {
	c := &mockCompleter{responses: []string{"  * Replaced old with new [main.go]  "}}
	src := &mockSource{diff: twoFileDiff, message: "Update main"}
	s := newTestSummarizer(c, src)

	got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef123456", "tok")
	if got != "* Replaced old with new [main.go]" {
		t.Errorf("got %q", got)
	}
	if src.token != "tok" {
		t.Errorf("expected token to select the source, got %q", src.token)
	}
	if !strings.Contains(c.prompts[0], "diff --git a/util.go") {
		t.Error("prompt should contain the diff")
	}
}

func TestCommitDiffFailureUsesMessage(t *testing.T) {
	c := &mockCompleter{responses: []string{"unused"}}
	src := &mockSource{diffErr: errors.New("timeout"), message: "Fix login bug\n\nLonger body"}
	s := newTestSummarizer(c, src)

	got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef123456", "")
	if got != "Fix login bug" {
		t.Errorf("got %q", got)
	}
	if c.calls != 0 {
		t.Errorf("model should not be called without a diff, got %d calls", c.calls)
	}
}

func TestCommitEmptyDiffUsesMessage(t *testing.T) {
	src := &mockSource{diff: "  \n", message: "Initial commit"}
	s := newTestSummarizer(&mockCompleter{}, src)

	if got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef1", ""); got != "Initial commit" {
		t.Errorf("got %q", got)
	}
}

func TestCommitModelFailureCountsFiles(t *testing.T) {
	c := &mockCompleter{err: errors.New("provider down")}
	src := &mockSource{diff: twoFileDiff, message: "Refactor helpers"}
	s := newTestSummarizer(c, src)

	got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef123456", "")
	if got != "Refactor helpers (2 files changed)" {
		t.Errorf("got %q", got)
	}
	if c.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", c.calls)
	}
}

func TestCommitEmptyModelOutputFallsBack(t *testing.T) {
	c := &mockCompleter{responses: []string{"   "}}
	src := &mockSource{diff: twoFileDiff, message: "Tidy"}
	s := newTestSummarizer(c, src)

	if got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef1", ""); got != "Tidy (2 files changed)" {
		t.Errorf("got %q", got)
	}
}

func TestCommitNothingKnown(t *testing.T) {
	src := &mockSource{diffErr: errors.New("gone"), messageErr: errors.New("gone")}
	s := newTestSummarizer(&mockCompleter{}, src)

	if got := s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef123456", ""); got != "Commit abcdef1" {
		t.Errorf("got %q", got)
	}
	if got := s.Commit(context.Background(), "not a repo", "abcdef123456", ""); got != "Commit abcdef1" {
		t.Errorf("invalid url: got %q", got)
	}
}

func TestCommitDiffTruncated(t *testing.T) {
	big := "diff --git a/x b/x\n" + strings.Repeat("+line\n", MaxDiffSize/4)
	c := &mockCompleter{responses: []string{"* Added many lines [x]"}}
	s := newTestSummarizer(c, &mockSource{diff: big, message: "m"})

	s.Commit(context.Background(), "https://github.com/acme/widgets", "abcdef1", "")
	if !strings.Contains(c.prompts[0], truncationMarker) {
		t.Error("expected truncation marker in prompt")
	}
	if len(c.prompts[0]) > MaxDiffSize+len(commitPromptTemplate)+len(truncationMarker) {
		t.Errorf("prompt too large: %d bytes", len(c.prompts[0]))
	}
}

func TestFileSummary(t *testing.T) {
	c := &mockCompleter{responses: []string{"Defines the HTTP router and registers all API handlers."}}
	s := newTestSummarizer(c, &mockSource{})

	got := s.File(context.Background(), nil, "internal/api/router.go", "package api\n\nfunc Routes() {}\n")
	if got != "Defines the HTTP router and registers all API handlers." {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(c.prompts[0], "internal/api/router.go") {
		t.Error("prompt should name the file")
	}
}

func TestFileShortSummaryRetried(t *testing.T) {
	c := &mockCompleter{responses: []string{"Router.", "Configures request routing for the public API."}}
	s := newTestSummarizer(c, &mockSource{})

	got := s.File(context.Background(), nil, "router.go", "package api")
	if got != "Configures request routing for the public API." {
		t.Errorf("got %q", got)
	}
	if c.calls != 2 {
		t.Errorf("expected 2 calls, got %d", c.calls)
	}
}

func TestFileRepeatedSummaryRejected(t *testing.T) {
	same := "Bundles the React DOM development build for the browser."
	c := &mockCompleter{responses: []string{same}}
	s := newTestSummarizer(c, &mockSource{})
	tr := NewTracker()

	if got := s.File(context.Background(), tr, "vendor/react-dom.js", "var ReactDOM = {}"); got != same {
		t.Fatalf("first file: got %q", got)
	}
	got := s.File(context.Background(), tr, "src/app.js", "const app = start()")
	if got != "File: src/app.js (1 lines). Contains: app" {
		t.Errorf("second file should fall back, got %q", got)
	}
	if c.calls != 4 {
		t.Errorf("expected 1 + 3 calls, got %d", c.calls)
	}

	// Summarizing the same file again is not a repeat.
	if got := s.File(context.Background(), tr, "vendor/react-dom.js", "var ReactDOM = {}"); got != same {
		t.Errorf("same file: got %q", got)
	}
}

func TestFileRepeatCheckScopedToTracker(t *testing.T) {
	same := "Exports the shared configuration loader used by every service."
	c := &mockCompleter{responses: []string{same}}
	s := newTestSummarizer(c, &mockSource{})

	// Two runs, for two projects, get the same answer for different files.
	first, second := NewTracker(), NewTracker()
	if got := s.File(context.Background(), first, "alpha/config.go", "package config"); got != same {
		t.Fatalf("first run: got %q", got)
	}
	if got := s.File(context.Background(), second, "beta/settings.go", "package settings"); got != same {
		t.Errorf("second run should keep the model summary, got %q", got)
	}
	if c.calls != 2 {
		t.Errorf("expected one call per run, got %d", c.calls)
	}

	// Without a tracker nothing is remembered.
	if got := s.File(context.Background(), nil, "gamma/conf.go", "package conf"); got != same {
		t.Errorf("untracked: got %q", got)
	}
}

func TestFileFailureFallsBack(t *testing.T) {
	c := &mockCompleter{err: errors.New("provider down")}
	s := newTestSummarizer(c, &mockSource{})

	code := "class Store {}\nfunction load() {}\nconst x = 1\n"
	got := s.File(context.Background(), nil, "store.js", code)
	if got != "File: store.js (4 lines). Contains: Store, load, x" {
		t.Errorf("got %q", got)
	}
	if c.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", c.calls)
	}
}

func TestFileEmptyCode(t *testing.T) {
	c := &mockCompleter{responses: []string{"never used for empty files"}}
	s := newTestSummarizer(c, &mockSource{})

	if got := s.File(context.Background(), nil, "empty.txt", ""); got != "File: empty.txt (1 lines)" {
		t.Errorf("got %q", got)
	}
	if c.calls != 0 {
		t.Errorf("expected no model calls, got %d", c.calls)
	}
}

func TestFileTimeout(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := New(Options{Completer: slow, Policy: fastPolicy, FileTimeout: 20 * time.Millisecond})

	start := time.Now()
	got := s.File(context.Background(), nil, "slow.go", "func main() {}")
	if got != "File: slow.go (1 lines). Contains: main" {
		t.Errorf("got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Error("file timeout not applied")
	}
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
