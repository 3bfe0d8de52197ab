package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ad-itya07/Dionysus/internal/ingest"
)

// progressBar renders ingestion progress on one terminal line.
type progressBar struct {
	width  int
	writer io.Writer
	last   ingest.ProgressEvent
}

func newProgressBar(writer io.Writer) *progressBar {
	return &progressBar{width: 30, writer: writer}
}

// Update redraws the bar for e.
func (p *progressBar) Update(e ingest.ProgressEvent) {
	p.last = e
	p.render()
}

// Finish redraws the last state and ends the line.
func (p *progressBar) Finish() {
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *progressBar) render() {
	pct := min(max(p.last.Progress, 0), 100)
	filled := pct * p.width / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)

	fmt.Fprintf(p.writer, "\r%-10s [%s] %3d%%", p.last.Stage, bar, pct)
	if p.last.FilesTotal > 0 {
		fmt.Fprintf(p.writer, "  files %d/%d", p.last.FilesProcessed, p.last.FilesTotal)
	}
	if p.last.CommitsTotal > 0 {
		fmt.Fprintf(p.writer, "  commits %d/%d", p.last.CommitsProcessed, p.last.CommitsTotal)
	}
}
