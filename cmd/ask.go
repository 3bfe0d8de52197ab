package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/ui"
)

var askSave bool

var askCmd = &cobra.Command{
	Use:   "ask <project-id> <question...>",
	Short: "Ask a question about an ingested repository",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSave, "save", false, "save the question and answer to the project")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	projectID := args[0]
	question := strings.Join(args[1:], " ")
	answer, err := c.Answerer.Ask(ctx, projectID, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var text strings.Builder
	for delta := range answer.Deltas() {
		text.WriteString(delta)
		fmt.Fprint(out, delta)
	}
	fmt.Fprintln(out)
	if err := answer.Err(); err != nil {
		return err
	}

	if len(answer.References) > 0 {
		ui.Header(out, "References")
		for _, ref := range answer.References {
			fmt.Fprintf(out, "  %s\n", ref.FileName)
		}
	}

	if askSave {
		saved, err := c.Answerer.SaveAnswer(projectID, userID, question, text.String(), answer.References)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Dim("saved as "+saved.ID))
	}
	return nil
}
