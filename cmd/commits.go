package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/ui"
)

var commitsRefresh bool

var commitsCmd = &cobra.Command{
	Use:   "commits <project-id>",
	Short: "Show a project's latest commits and their summaries",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommits,
}

func init() {
	commitsCmd.Flags().BoolVar(&commitsRefresh, "refresh", false, "poll GitHub for new commits first")
	rootCmd.AddCommand(commitsCmd)
}

func runCommits(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	if commitsRefresh {
		res, err := c.Poller.PollProject(ctx, args[0])
		if err != nil {
			return err
		}
		ui.Infof(out, "%d new commits, %d summarized", res.Inserted, res.Summarized)
	}

	list, err := c.Store.ListCommits(args[0], 0)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No commits recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tAUTHOR\tWHEN\tMESSAGE")
	for _, cm := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortHash(cm.Hash), cm.AuthorName, ui.Ago(cm.CommittedAt), firstLine(cm.Message))
		if cm.Summary != "" {
			for _, line := range strings.Split(cm.Summary, "\n") {
				fmt.Fprintf(w, "\t\t\t%s\n", ui.Dim(line))
			}
		}
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
