package github

import (
	"fmt"
	"strings"
)

// ParseRepoURL extracts owner and repository name from a GitHub URL such as
// https://github.com/owner/repo, github.com/owner/repo.git or
// https://github.com/owner/repo/tree/main.
func ParseRepoURL(raw string) (RepoRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RepoRef{}, fmt.Errorf("%w: empty url", ErrInvalidRepositoryReference)
	}
	if rest, ok := strings.CutPrefix(s, "git@github.com:"); ok {
		s = "github.com/" + rest
	}

	parts := strings.Split(s, "/")
	idx := -1
	for i, p := range parts {
		if strings.EqualFold(p, "github.com") || strings.EqualFold(p, "www.github.com") {
			idx = i
			break
		}
	}
	if idx == -1 || idx+2 >= len(parts) {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryReference, raw)
	}

	owner := parts[idx+1]
	name := strings.TrimSuffix(parts[idx+2], ".git")
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if owner == "" || name == "" {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryReference, raw)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}
