package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/ingest"
	"github.com/ad-itya07/Dionysus/internal/pubsub"
	"github.com/ad-itya07/Dionysus/internal/store"
	"github.com/ad-itya07/Dionysus/internal/ui"
)

var (
	ingestName  string
	ingestToken string
	quiet       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <repo-url>",
	Short: "Create a project for a repository and ingest it",
	Long: `Charge one credit per file, create a project and ingest the repository's
files and commits. The command waits for ingestion to finish and shows
its progress.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var restartCmd = &cobra.Command{
	Use:   "restart <project-id>",
	Short: "Run a failed, stuck or finished ingestion again",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestart,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "project name (default: the repository name)")
	ingestCmd.Flags().StringVar(&ingestToken, "token", "", "GitHub token for a private repository")
	for _, c := range []*cobra.Command{ingestCmd, restartCmd} {
		c.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show progress")
		rootCmd.AddCommand(c)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// Subscribe first so the opening events are not missed.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := c.Broker.Subscribe(subCtx)

	p, err := c.Service.CreateProject(ctx, userID, ingestName, args[0], ingestToken)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ui.Infof(out, "project %s created for %s", p.ID, p.RepoURL)
	return waitForIngestion(c, p.ID, events, out)
}

func runRestart(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := c.Broker.Subscribe(subCtx)

	if err := c.Service.Restart(userID, args[0]); err != nil {
		return err
	}
	return waitForIngestion(c, args[0], events, cmd.OutOrStdout())
}

// waitForIngestion shows progress events for projectID until its run
// returns, then prints the outcome.
func waitForIngestion(c *components, projectID string, events <-chan pubsub.Event[ingest.ProgressEvent], out io.Writer) error {
	done := make(chan struct{})
	go func() {
		c.Service.Wait()
		close(done)
	}()

	var bar *progressBar
	if !quiet {
		bar = newProgressBar(out)
	}
loop:
	for {
		select {
		case e := <-events:
			if bar != nil && e.Payload.ProjectID == projectID {
				bar.Update(e.Payload)
			}
		case <-done:
			break loop
		}
	}
	if bar != nil {
		bar.Finish()
	}

	st, err := c.Service.Status(projectID)
	if err != nil {
		return err
	}
	if st.Status != store.StatusCompleted {
		ui.Errorf(out, "ingestion %s: %s", st.Status, st.ErrorMessage)
		return fmt.Errorf("ingestion of %s did not complete", projectID)
	}
	ui.Successf(out, "ingested %d files and %d commits", st.FilesTotal, st.CommitsTotal)
	return nil
}
