package qa

import "strings"

// MaxKeywords caps the keywords taken from one question.
const MaxKeywords = 10

var overviewPhrases = []string{
	"tell me about",
	"what is this project",
	"what is the project",
	"overview",
	"describe this project",
	"describe the project",
	"explain this project",
	"explain the project",
	"what does this project do",
	"what is this codebase",
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "should": true,
	"could": true, "can": true, "may": true, "might": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "where": true,
	"when": true, "why": true, "how": true, "about": true,
}

// IsOverviewQuestion reports whether the question asks about the project as
// a whole rather than a specific piece of code.
func IsOverviewQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, phrase := range overviewPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// ExtractKeywords lower-cases the question, splits it on whitespace and
// keeps up to MaxKeywords words that are longer than two characters and
// not stop words. Punctuation is kept as part of the word.
func ExtractKeywords(question string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(question)) {
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		out = append(out, word)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
