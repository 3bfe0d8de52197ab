// Package chunk splits file content into overlapping windows used as the
// unit of storage and retrieval.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the maximum length of one chunk in bytes.
	DefaultSize = 8192

	// DefaultOverlap is how many bytes consecutive chunks share.
	DefaultOverlap = 1024
)

// Chunk is one window of a file.
type Chunk struct {
	Index   int
	Content string
	// Start is the byte offset of Content in the original text.
	Start int
}

// Options controls chunk geometry. Zero values use the defaults.
type Options struct {
	Size    int
	Overlap int
}

func (o Options) normalize() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Overlap < 0 || o.Overlap >= o.Size/2 {
		o.Overlap = min(DefaultOverlap, o.Size/4)
	}
	return o
}

// Split returns content as one chunk when it fits, otherwise as a sequence
// of windows of at most opts.Size bytes that overlap by opts.Overlap bytes.
// A window ends just after the last newline in its back half when there is
// one. Window edges never split a UTF-8 sequence, so a window may be a few
// bytes shorter than opts.Size. The result depends only on content and opts.
func Split(content string, opts Options) []Chunk {
	opts = opts.normalize()
	if len(content) <= opts.Size {
		return []Chunk{{Index: 0, Content: content, Start: 0}}
	}

	var chunks []Chunk
	start := 0
	for start < len(content) {
		end := len(content)
		if start+opts.Size < end {
			end = runeStart(content, start+opts.Size, start)
			if nl := strings.LastIndexByte(content[start:end], '\n'); nl >= 0 && nl > opts.Size/2 {
				end = start + nl + 1
			}
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Content: content[start:end], Start: start})
		if end == len(content) {
			break
		}
		start = runeStart(content, end-opts.Overlap, start)
	}
	return chunks
}

// runeStart moves i back to the first byte of the UTF-8 sequence containing
// it, but not to or below floor. If that would stall, i moves forward to the
// next sequence start instead.
func runeStart(s string, i, floor int) int {
	j := i
	for j > floor && j < len(s) && !utf8.RuneStart(s[j]) {
		j--
	}
	if j > floor {
		return j
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// Reassemble reverses Split by dropping the overlapping prefix of every
// chunk after the first.
func Reassemble(chunks []Chunk) string {
	var b strings.Builder
	covered := 0
	for _, c := range chunks {
		end := c.Start + len(c.Content)
		if end <= covered {
			continue
		}
		b.WriteString(c.Content[covered-c.Start:])
		covered = end
	}
	return b.String()
}
