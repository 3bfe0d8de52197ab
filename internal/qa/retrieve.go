package qa

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ad-itya07/Dionysus/internal/store"
)

// Context assembly limits.
const (
	MaxReferences = 10

	overviewCommits   = 10
	overviewReadmes   = 5
	overviewStructure = 50
	structureShown    = 20
	readmePreview     = 500
	referenceReadmes  = 3
	referenceKeyFiles = 5
	overviewExcerpt   = 1000
	specificExcerpt   = 2000
)

// keyFiles are manifests and entry points that describe a project.
var keyFiles = map[string]bool{
	"package.json":     true,
	"package.yaml":     true,
	"requirements.txt": true,
	"Cargo.toml":       true,
	"go.mod":           true,
	"pom.xml":          true,
	"index.ts":         true,
	"index.js":         true,
	"main.ts":          true,
	"main.js":          true,
	"app.ts":           true,
	"app.js":           true,
	"App.tsx":          true,
	"App.jsx":          true,
}

// Retrieval is the context selected for one question.
type Retrieval struct {
	Question string
	Overview bool
	Keywords []string
	// Context is the text placed between the prompt's context markers.
	Context string
	// References are the files the context was built from, at most
	// MaxReferences of them.
	References []store.FileReference
}

// Retrieve selects stored records for a question about a project.
func Retrieve(st store.Store, project *store.Project, question string) (*Retrieval, error) {
	records, err := st.ListCodeRecords(project.ID, 0)
	if err != nil {
		return nil, err
	}

	r := &Retrieval{
		Question: question,
		Overview: IsOverviewQuestion(question),
		Keywords: ExtractKeywords(question),
	}

	var b strings.Builder
	var refs []store.CodeRecord
	if r.Overview {
		commits, err := st.ListCommits(project.ID, overviewCommits)
		if err != nil {
			return nil, err
		}
		writeOverview(&b, project, commits, records)
		b.WriteString("\n")

		refs = append(take(records, referenceReadmes, isReadme), take(records, referenceKeyFiles, isKeyFile)...)
		if len(refs) == 0 {
			for _, s := range Rank(records, r.Keywords, true) {
				refs = append(refs, s.Record)
			}
		}
		writeFiles(&b, refs, "Content", overviewExcerpt)
	} else {
		for _, s := range Rank(records, r.Keywords, false) {
			refs = append(refs, s.Record)
		}
		writeFiles(&b, refs, "Code Content", specificExcerpt)
	}
	r.Context = b.String()

	if len(refs) > MaxReferences {
		refs = refs[:MaxReferences]
	}
	r.References = make([]store.FileReference, 0, len(refs))
	for _, rec := range refs {
		r.References = append(r.References, store.FileReference{
			FileName:   rec.FileName,
			SourceCode: rec.SourceCode,
			Summary:    rec.Summary,
		})
	}
	return r, nil
}

func writeOverview(b *strings.Builder, p *store.Project, commits []store.CommitRecord, records []store.CodeRecord) {
	b.WriteString("PROJECT METADATA:\n")
	fmt.Fprintf(b, "- Project Name: %s\n", p.Name)
	fmt.Fprintf(b, "- GitHub URL: %s\n", p.RepoURL)
	fmt.Fprintf(b, "- Created: %s\n\n", p.CreatedAt.Format("2006-01-02"))

	if readmes := take(records, overviewReadmes, isReadme); len(readmes) > 0 {
		b.WriteString("README FILES:\n")
		for _, r := range readmes {
			fmt.Fprintf(b, "File: %s\n", r.FileName)
			fmt.Fprintf(b, "Summary: %s\n", r.Summary)
			fmt.Fprintf(b, "Content Preview: %s...\n\n", excerpt(r.SourceCode, readmePreview))
		}
	}

	if len(commits) > 0 {
		fmt.Fprintf(b, "RECENT COMMITS (Last %d):\n", len(commits))
		for _, c := range commits {
			fmt.Fprintf(b, "- %s: %s\n", c.AuthorName, c.Message)
			if c.Summary != "" {
				fmt.Fprintf(b, "  Summary: %s\n", c.Summary)
			}
			fmt.Fprintf(b, "  Date: %s\n\n", c.CommittedAt.Format("2006-01-02"))
		}
	}

	names := distinctNames(records, overviewStructure)
	if len(names) > 0 {
		b.WriteString("PROJECT STRUCTURE (Sample files):\n")
		shown := names
		if len(shown) > structureShown {
			shown = shown[:structureShown]
		}
		for _, n := range shown {
			fmt.Fprintf(b, "- %s\n", n)
		}
		if len(names) > structureShown {
			fmt.Fprintf(b, "... and %d more files\n", len(names)-structureShown)
		}
	}
}

func writeFiles(b *strings.Builder, records []store.CodeRecord, label string, max int) {
	for _, r := range records {
		fmt.Fprintf(b, "FILE: %s\n", r.FileName)
		fmt.Fprintf(b, "Summary: %s\n", r.Summary)
		content := excerpt(r.SourceCode, max)
		if len(content) < len(r.SourceCode) {
			content += "..."
		}
		fmt.Fprintf(b, "%s: %s\n\n", label, content)
	}
}

func isReadme(r store.CodeRecord) bool {
	return strings.Contains(strings.ToLower(r.FileName), "readme")
}

// isKeyFile matches on the base name so manifests in subdirectories count.
func isKeyFile(r store.CodeRecord) bool {
	return keyFiles[path.Base(r.FileName)]
}

func take(records []store.CodeRecord, n int, keep func(store.CodeRecord) bool) []store.CodeRecord {
	var out []store.CodeRecord
	for _, r := range records {
		if len(out) == n {
			break
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func distinctNames(records []store.CodeRecord, n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if len(out) == n {
			break
		}
		if !seen[r.FileName] {
			seen[r.FileName] = true
			out = append(out, r.FileName)
		}
	}
	return out
}

// excerpt returns at most max bytes of s without splitting a UTF-8 rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
