package store

// Store defines the storage operations used by ingestion, commit
// processing, question answering and admission control. It is satisfied
// by *DB and can be replaced with a mock for testing.
type Store interface {
	CreateProject(p *Project) error
	GetProject(id string) (*Project, error)
	ListProjects(userID string) ([]Project, error)
	ListActiveProjects() ([]Project, error)
	ArchiveProject(id string) error

	AddMember(projectID, userID string) (bool, error)
	IsMember(projectID, userID string) (bool, error)
	ListMembers(projectID string) ([]Member, error)

	// MarkStarted claims a PENDING project for a run.
	MarkStarted(id string) (bool, error)
	// UpdateStage writes stage progress; progress never decreases.
	UpdateStage(id string, u StageUpdate) error
	MarkCompleted(id string) error
	MarkFailed(id, message string) error
	ResetIngestion(id string, from ...Status) (bool, error)

	// InsertCodeRecords is insert-or-ignore on (project, file, chunk).
	InsertCodeRecords(records []CodeRecord) (int, error)
	ListCodeRecords(projectID string, limit int) ([]CodeRecord, error)
	CountCodeRecords(projectID string) (int, error)

	// InsertCommits is insert-or-ignore on (project, hash).
	InsertCommits(commits []CommitRecord) (int, error)
	CommitHashes(projectID string) (map[string]bool, error)
	ListCommits(projectID string, limit int) ([]CommitRecord, error)
	CountCommits(projectID string) (int, error)

	SaveQuestion(q *SavedQuestion) error
	ListQuestions(projectID string) ([]SavedQuestion, error)

	EnsureUser(id string, credits int) error
	GetCredits(userID string) (int, error)
	AddCredits(userID string, amount int) error
	DeductCredits(userID string, amount int) error
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
