package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestProject(t *testing.T, db *DB, id string) *Project {
	t.Helper()
	p := &Project{ID: id, UserID: "user-1", Name: "widgets", RepoURL: "https://github.com/acme/widgets"}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return p
}

func intPtr(n int) *int { return &n }

func TestMigration(t *testing.T) {
	db := setupTestDB(t)

	var version int
	err := db.Conn().QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if version != 2 {
		t.Errorf("expected user_version 2, got %d", version)
	}
}

func TestProjectLifecycle(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	got, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Status != StatusPending || got.Progress != 0 {
		t.Errorf("expected fresh PENDING project, got %s/%d", got.Status, got.Progress)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("expected no timestamps on a fresh project")
	}

	started, err := db.MarkStarted("p1")
	if err != nil || !started {
		t.Fatalf("MarkStarted = %v, %v", started, err)
	}
	again, err := db.MarkStarted("p1")
	if err != nil || again {
		t.Errorf("second MarkStarted should not claim the project: %v, %v", again, err)
	}

	if err := db.UpdateStage("p1", StageUpdate{Progress: 20, FilesTotal: intPtr(3)}); err != nil {
		t.Fatalf("UpdateStage failed: %v", err)
	}
	if err := db.UpdateStage("p1", StageUpdate{Progress: 10, FilesProcessed: intPtr(1)}); err != nil {
		t.Fatalf("UpdateStage failed: %v", err)
	}
	got, _ = db.GetProject("p1")
	if got.Progress != 20 {
		t.Errorf("progress must not decrease, got %d", got.Progress)
	}
	if got.FilesTotal != 3 || got.FilesProcessed != 1 {
		t.Errorf("unexpected counters: %d/%d", got.FilesProcessed, got.FilesTotal)
	}

	if err := db.MarkCompleted("p1"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	got, _ = db.GetProject("p1")
	if got.Status != StatusCompleted || got.Progress != 100 || got.CompletedAt == nil {
		t.Errorf("unexpected completed project: %+v", got)
	}
}

func TestUpdateStageIgnoredWhenNotRunning(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	if err := db.UpdateStage("p1", StageUpdate{Progress: 50}); err != nil {
		t.Fatalf("UpdateStage failed: %v", err)
	}
	got, _ := db.GetProject("p1")
	if got.Progress != 0 {
		t.Errorf("expected progress untouched on a PENDING project, got %d", got.Progress)
	}
}

func TestMarkFailedAndReset(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")
	db.MarkStarted("p1")
	db.UpdateStage("p1", StageUpdate{Progress: 40, FilesTotal: intPtr(9), FilesProcessed: intPtr(4)})

	if err := db.MarkFailed("p1", "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	got, _ := db.GetProject("p1")
	if got.Status != StatusFailed || got.ErrorMessage != "boom" || got.CompletedAt == nil {
		t.Errorf("unexpected failed project: %+v", got)
	}

	ok, err := db.ResetIngestion("p1", StatusPending)
	if err != nil || ok {
		t.Errorf("reset from a non-matching state should be refused: %v, %v", ok, err)
	}

	ok, err = db.ResetIngestion("p1", StatusFailed, StatusInProgress)
	if err != nil || !ok {
		t.Fatalf("ResetIngestion = %v, %v", ok, err)
	}
	got, _ = db.GetProject("p1")
	if got.Status != StatusPending || got.Progress != 0 || got.FilesTotal != 0 || got.FilesProcessed != 0 {
		t.Errorf("expected reset project, got %+v", got)
	}
	if got.ErrorMessage != "" || got.CompletedAt != nil || got.StartedAt != nil {
		t.Errorf("expected cleared error and timestamps, got %+v", got)
	}
}

func TestArchiveProject(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")
	createTestProject(t, db, "p2")

	if err := db.ArchiveProject("p1"); err != nil {
		t.Fatalf("ArchiveProject failed: %v", err)
	}
	if err := db.ArchiveProject("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("archiving twice should report ErrNotFound, got %v", err)
	}

	list, err := db.ListProjects("user-1")
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p2" {
		t.Errorf("expected only p2, got %+v", list)
	}

	archived, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("archived project should stay addressable: %v", err)
	}
	if archived.DeletedAt == nil {
		t.Error("expected deleted_at to be set")
	}
}

func TestGetProjectNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetProject("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertCodeRecordsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	records := []CodeRecord{
		{ProjectID: "p1", FileName: "main.go", ChunkIndex: 0, SourceCode: "package main", Summary: "entry point"},
		{ProjectID: "p1", FileName: "big.go", ChunkIndex: 0, SourceCode: "a", Summary: "first half"},
		{ProjectID: "p1", FileName: "big.go", ChunkIndex: 1, SourceCode: "b", Summary: "second half", Embedding: []float32{0.5, -1}},
	}
	n, err := db.InsertCodeRecords(records)
	if err != nil {
		t.Fatalf("InsertCodeRecords failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 inserted, got %d", n)
	}

	changed := records[0]
	changed.SourceCode = "package other"
	n, err = db.InsertCodeRecords([]CodeRecord{changed, records[1]})
	if err != nil {
		t.Fatalf("re-insert should be a no-op, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted on re-insert, got %d", n)
	}

	stored, err := db.ListCodeRecords("p1", 0)
	if err != nil {
		t.Fatalf("ListCodeRecords failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(stored))
	}
	for _, r := range stored {
		if r.FileName == "main.go" && r.SourceCode != "package main" {
			t.Errorf("stored content changed to %q", r.SourceCode)
		}
		if r.FileName == "big.go" && r.ChunkIndex == 1 {
			if len(r.Embedding) != 2 || r.Embedding[1] != -1 {
				t.Errorf("unexpected embedding %v", r.Embedding)
			}
		}
	}
}

func TestInsertCommitsSkipsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	commits := []CommitRecord{
		{ProjectID: "p1", Hash: "aaa", Message: "first", CommittedAt: base, Summary: "first"},
		{ProjectID: "p1", Hash: "bbb", Message: "second", AuthorName: "ada", CommittedAt: base.Add(time.Hour), Summary: "second"},
	}
	n, err := db.InsertCommits(commits)
	if err != nil || n != 2 {
		t.Fatalf("InsertCommits = %d, %v", n, err)
	}

	n, err = db.InsertCommits(append(commits, CommitRecord{ProjectID: "p1", Hash: "ccc", Message: "third", CommittedAt: base.Add(2 * time.Hour), Summary: "third"}))
	if err != nil {
		t.Fatalf("InsertCommits failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 new commit, got %d", n)
	}

	hashes, err := db.CommitHashes("p1")
	if err != nil {
		t.Fatalf("CommitHashes failed: %v", err)
	}
	if len(hashes) != 3 || !hashes["aaa"] {
		t.Errorf("unexpected hashes %v", hashes)
	}

	latest, err := db.ListCommits("p1", 2)
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(latest) != 2 || latest[0].Hash != "ccc" || latest[1].Hash != "bbb" {
		t.Errorf("expected newest first, got %+v", latest)
	}
	if !latest[1].CommittedAt.Equal(base.Add(time.Hour)) || latest[1].AuthorName != "ada" {
		t.Errorf("unexpected commit round trip: %+v", latest[1])
	}
}

func TestQuestions(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	q := &SavedQuestion{
		ID: "q1", ProjectID: "p1", UserID: "user-1",
		Question: "where is auth?", Answer: "in auth.go",
		FileReferences: []FileReference{{FileName: "auth.go", Summary: "auth"}},
	}
	if err := db.SaveQuestion(q); err != nil {
		t.Fatalf("SaveQuestion failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := db.SaveQuestion(&SavedQuestion{ID: "q2", ProjectID: "p1", UserID: "user-1", Question: "later", Answer: "yes"}); err != nil {
		t.Fatalf("SaveQuestion failed: %v", err)
	}

	list, err := db.ListQuestions("p1")
	if err != nil {
		t.Fatalf("ListQuestions failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "q2" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if len(list[1].FileReferences) != 1 || list[1].FileReferences[0].FileName != "auth.go" {
		t.Errorf("unexpected references %+v", list[1].FileReferences)
	}
}

func TestCredits(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetCredits("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := db.EnsureUser("u", 50); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if err := db.EnsureUser("u", 999); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if err := db.AddCredits("u", 10); err != nil {
		t.Fatalf("AddCredits failed: %v", err)
	}
	if c, _ := db.GetCredits("u"); c != 60 {
		t.Errorf("expected 60 credits, got %d", c)
	}

	if err := db.DeductCredits("u", 120); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := db.DeductCredits("u", 45); err != nil {
		t.Fatalf("DeductCredits failed: %v", err)
	}
	if c, _ := db.GetCredits("u"); c != 15 {
		t.Errorf("expected 15 credits, got %d", c)
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	got := decodeVector(encodeVector(v))
	if len(got) != len(v) {
		t.Fatalf("expected %d values, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %v want %v", i, got[i], v[i])
		}
	}
	if decodeVector(nil) != nil || encodeVector(nil) != nil {
		t.Error("expected nil for empty vectors")
	}
	if got := decodeVector(encodeVector(v)[:5]); len(got) != 1 {
		t.Errorf("partial trailing value should be dropped, got %v", got)
	}
}

func TestMembers(t *testing.T) {
	db := setupTestDB(t)
	createTestProject(t, db, "p1")

	if ok, err := db.IsMember("p1", "user-1"); err != nil || !ok {
		t.Fatalf("owner should be a member: %v, %v", ok, err)
	}
	if ok, _ := db.IsMember("p1", "user-2"); ok {
		t.Error("user-2 should not be a member yet")
	}

	added, err := db.AddMember("p1", "user-2")
	if err != nil || !added {
		t.Fatalf("AddMember = %v, %v", added, err)
	}
	if added, _ := db.AddMember("p1", "user-2"); added {
		t.Error("adding an existing member should report false")
	}

	members, err := db.ListMembers("p1")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].UserID != "user-1" || !members[0].Owner {
		t.Errorf("expected owner first, got %+v", members[0])
	}
	if members[1].UserID != "user-2" || members[1].Owner || members[1].JoinedAt.IsZero() {
		t.Errorf("unexpected member %+v", members[1])
	}

	projects, err := db.ListProjects("user-2")
	if err != nil || len(projects) != 1 || projects[0].ID != "p1" {
		t.Errorf("member should list the project, got %v, %v", projects, err)
	}
}

func TestMigrationBackfillsOwners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dionysus.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	createTestProject(t, db, "p1")

	// Roll back to a version 1 database that has no memberships.
	if _, err := db.Conn().Exec("DELETE FROM project_members"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Conn().Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if ok, err := db.IsMember("p1", "user-1"); err != nil || !ok {
		t.Errorf("owner should be backfilled as member: %v, %v", ok, err)
	}
}
