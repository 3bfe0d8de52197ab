package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ad-itya07/Dionysus/internal/store"
)

type mockStreamer struct {
	mu      sync.Mutex
	prompts []string
	deltas  []string
	err     error
}

func (m *mockStreamer) Stream(_ context.Context, prompt string, onDelta func(string) error) error {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	for _, d := range m.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return m.err
}

func newTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProject(t *testing.T, db *store.DB, id string, complete bool, records []store.CodeRecord) {
	t.Helper()
	p := &store.Project{ID: id, UserID: "u1", Name: "widgets", RepoURL: "https://github.com/acme/widgets"}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	if complete {
		if err := db.MarkCompleted(id); err != nil {
			t.Fatalf("completing project: %v", err)
		}
	}
	for i := range records {
		records[i].ProjectID = id
	}
	if _, err := db.InsertCodeRecords(records); err != nil {
		t.Fatalf("inserting records: %v", err)
	}
}

func widgetRecords() []store.CodeRecord {
	return []store.CodeRecord{
		{FileName: "README.md", SourceCode: "# Widgets\nA widget factory.", Summary: "Describes the widget factory."},
		{FileName: "go.mod", SourceCode: "module example.com/widgets", Summary: "Module definition."},
		{FileName: "factory/factory.go", SourceCode: "func Build() Widget", Summary: "Builds widgets in the factory."},
		{FileName: "util/strings.go", SourceCode: "func Pad()", Summary: "String helpers."},
	}
}

func TestAskSpecificQuestion(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "p1", true, widgetRecords())
	llm := &mockStreamer{deltas: []string{"The factory ", "builds widgets."}}
	a := NewAnswerer(db, llm, nil)

	ans, err := a.Ask(context.Background(), "p1", "Where does the factory build things?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Overview {
		t.Error("expected a specific question")
	}
	text, err := ans.Text()
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if text != "The factory builds widgets." {
		t.Errorf("unexpected answer %q", text)
	}

	var names []string
	for _, r := range ans.References {
		names = append(names, r.FileName)
	}
	if len(names) != 2 || names[0] != "README.md" || names[1] != "factory/factory.go" {
		t.Errorf("unexpected references %v", names)
	}

	prompt := llm.prompts[0]
	for _, want := range []string{"START CONTEXT BLOCK", "FILE: factory/factory.go", "Code Content: func Build() Widget", "START QUESTION\nWhere does the factory build things?\nEND QUESTION"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "util/strings.go") {
		t.Error("non-matching record should not be in the context")
	}
}

func TestAskOverviewQuestion(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "p1", true, widgetRecords())
	if _, err := db.InsertCommits([]store.CommitRecord{{ProjectID: "p1", Hash: "h1", Message: "Add factory", AuthorName: "dev", Summary: "Adds the factory"}}); err != nil {
		t.Fatal(err)
	}
	llm := &mockStreamer{deltas: []string{"ok"}}
	a := NewAnswerer(db, llm, nil)

	ans, err := a.Ask(context.Background(), "p1", "Tell me about this project")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := ans.Text(); err != nil {
		t.Fatal(err)
	}
	if !ans.Overview {
		t.Error("expected an overview question")
	}
	if len(ans.References) != 2 || ans.References[0].FileName != "README.md" || ans.References[1].FileName != "go.mod" {
		t.Errorf("unexpected references %+v", ans.References)
	}

	prompt := llm.prompts[0]
	for _, want := range []string{"PROJECT METADATA:", "- Project Name: widgets", "RECENT COMMITS (Last 1):", "- dev: Add factory", "PROJECT STRUCTURE", "- util/strings.go", "comprehensive overview"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAskStreamFailureApologizes(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "p1", true, widgetRecords())
	boom := errors.New("quota exceeded")
	a := NewAnswerer(db, &mockStreamer{deltas: []string{"partial "}, err: boom}, nil)

	ans, err := a.Ask(context.Background(), "p1", "how is the factory built")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	text, err := ans.Text()
	if !errors.Is(err, boom) {
		t.Errorf("expected stream error, got %v", err)
	}
	if text != "partial "+ApologyMessage {
		t.Errorf("unexpected text %q", text)
	}
}

func TestAskCapsReferences(t *testing.T) {
	db := newTestStore(t)
	var records []store.CodeRecord
	for i := 0; i < 20; i++ {
		records = append(records, store.CodeRecord{FileName: fmt.Sprintf("widget%02d.go", i), SourceCode: "widget", Summary: "widget"})
	}
	seedProject(t, db, "p1", true, records)
	llm := &mockStreamer{}
	a := NewAnswerer(db, llm, nil)

	ans, err := a.Ask(context.Background(), "p1", "widget")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	ans.Text()
	if len(ans.References) != MaxReferences {
		t.Errorf("expected %d references, got %d", MaxReferences, len(ans.References))
	}
	if n := strings.Count(llm.prompts[0], "FILE: "); n != SpecificLimit {
		t.Errorf("expected %d files in context, got %d", SpecificLimit, n)
	}
}

func TestAskRejects(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "pending", false, nil)
	a := NewAnswerer(db, &mockStreamer{}, nil)

	if _, err := a.Ask(context.Background(), "pending", "anything here"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if _, err := a.Ask(context.Background(), "missing", "anything here"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.Ask(context.Background(), "pending", "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAskCancelledContextEndsStream(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "p1", true, widgetRecords())
	a := NewAnswerer(db, &mockStreamer{deltas: []string{"a", "b", "c"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ans, err := a.Ask(ctx, "p1", "factory")
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := ans.Err(); err == nil {
		t.Error("expected an error after cancellation")
	}
}

func TestSaveAndListQuestions(t *testing.T) {
	db := newTestStore(t)
	seedProject(t, db, "p1", true, nil)
	a := NewAnswerer(db, &mockStreamer{}, nil)

	refs := []store.FileReference{{FileName: "main.go", SourceCode: "package main", Summary: "Entry point"}}
	saved, err := a.SaveAnswer("p1", "u1", "What starts the app?", "main.go does.", refs)
	if err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected an id")
	}

	got, err := a.ListQuestions("p1")
	if err != nil {
		t.Fatalf("ListQuestions failed: %v", err)
	}
	if len(got) != 1 || got[0].Answer != "main.go does." || len(got[0].FileReferences) != 1 || got[0].FileReferences[0].FileName != "main.go" {
		t.Errorf("unexpected saved questions %+v", got)
	}

	if _, err := a.SaveAnswer("missing", "u1", "q", "a", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
