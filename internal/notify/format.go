package notify

import (
	"fmt"
	"time"
)

// FormatCounts renders file and commit totals, e.g. "42 files, 1 commit".
func FormatCounts(files, commits int) string {
	return fmt.Sprintf("%s, %s", plural(files, "file"), plural(commits, "commit"))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatDuration renders a run duration rounded for humans.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "under a second"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
