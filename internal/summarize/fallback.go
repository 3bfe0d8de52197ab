package summarize

import (
	"fmt"
	"regexp"
	"strings"
)

const truncationMarker = "\n\n[... truncated ...]"

var (
	diffHeaderRe = regexp.MustCompile(`(?m)^diff --git`)
	funcNameRe   = regexp.MustCompile(`(?:function|func|def|const|let|var)\s+(\w+)`)
	typeNameRe   = regexp.MustCompile(`(?:class|type)\s+(\w+)`)
)

// Truncate cuts text to max bytes and appends a marker when anything was
// removed.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + truncationMarker
}

// CommitFallback builds a summary from the first line of a commit message,
// adding the number of files touched when a diff is available.
func CommitFallback(message, diff string) string {
	summary, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = "Commit"
	}

	if n := len(diffHeaderRe.FindAllStringIndex(diff, -1)); n > 0 {
		plural := ""
		if n > 1 {
			plural = "s"
		}
		summary += fmt.Sprintf(" (%d file%s changed)", n, plural)
	}
	return summary
}

// shortHashFallback names a commit when nothing else is known about it.
func shortHashFallback(hash string) string {
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return "Commit " + hash
}

// FileFallback describes a file structurally: its name, line count and up
// to three type names and three function names found in the code.
func FileFallback(fileName, code string) string {
	lines := strings.Count(code, "\n") + 1
	summary := fmt.Sprintf("File: %s (%d lines)", fileName, lines)

	var names []string
	names = append(names, firstMatches(typeNameRe, code, 3)...)
	names = append(names, firstMatches(funcNameRe, code, 3)...)
	if len(names) > 0 {
		summary += ". Contains: " + strings.Join(names, ", ")
	}
	return summary
}

func firstMatches(re *regexp.Regexp, s string, n int) []string {
	matches := re.FindAllStringSubmatch(s, n)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
