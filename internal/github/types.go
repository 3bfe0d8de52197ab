package github

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRepositoryReference is returned when a URL cannot be
	// resolved to an owner and repository name.
	ErrInvalidRepositoryReference = errors.New("invalid repository reference")

	// ErrHostUnavailable is returned when a GitHub call keeps failing after
	// every retry attempt.
	ErrHostUnavailable = errors.New("github host unavailable")
)

// Commit is one entry of a repository's history.
type Commit struct {
	Hash         string
	Message      string
	AuthorName   string
	AuthorAvatar string
	Date         time.Time
}

// TreeEntry is a blob listed in a recursive git tree.
type TreeEntry struct {
	Path string
	SHA  string
	Size int
}

// RepoRef identifies a repository on GitHub.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}
