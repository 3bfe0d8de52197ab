package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/credits"
	"github.com/ad-itya07/Dionysus/internal/ui"
)

var checkToken string

var checkCmd = &cobra.Command{
	Use:   "check <repo-url>",
	Short: "Count a repository's files and compare the cost with your credits",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkToken, "token", "", "GitHub token for a private repository")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	est, err := c.Service.CheckRepository(ctx, userID, args[0], checkToken)
	var ice *credits.InsufficientCreditsError
	if err != nil && !errors.As(err, &ice) {
		return err
	}

	ui.Header(out, est.Repo.String())
	ui.Field(out, "Files", est.FileCount)
	ui.Field(out, "Credits required", est.RequiredCredits)
	ui.Field(out, "Credits available", est.Available)
	if ice != nil {
		ui.Errorf(out, "not enough credits: %d more needed", ice.Required-ice.Available)
		return fmt.Errorf("insufficient credits")
	}
	ui.Successf(out, "ready to ingest")
	return nil
}
