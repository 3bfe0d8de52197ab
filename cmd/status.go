package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "List your projects or show one project's ingestion status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		projects, err := c.Service.Projects(userID)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects. Run 'dionysus ingest <repo-url>' to create one.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tCREATED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", p.ID, p.Name, ui.Status(p.Status), p.Progress, ui.Ago(p.CreatedAt))
		}
		return w.Flush()
	}

	st, err := c.Service.Status(args[0])
	if err != nil {
		return err
	}
	ui.Header(out, st.ProjectID)
	ui.Field(out, "Status", ui.Status(st.Status))
	ui.Field(out, "Progress", fmt.Sprintf("%d%%", st.Progress))
	ui.Field(out, "Files", fmt.Sprintf("%d/%d", st.FilesProcessed, st.FilesTotal))
	ui.Field(out, "Commits", fmt.Sprintf("%d/%d", st.CommitsProcessed, st.CommitsTotal))
	if st.ErrorMessage != "" {
		ui.Field(out, "Error", st.ErrorMessage)
	}
	if st.CanAnswerQuestions {
		ui.Successf(out, "ready for questions")
	} else if ok, _ := c.Service.CanResume(st.ProjectID); ok {
		ui.Warnf(out, "run 'dionysus restart %s' to ingest again", st.ProjectID)
	}
	return nil
}
