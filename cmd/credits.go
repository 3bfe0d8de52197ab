package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/ui"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show or grant ingestion credits",
}

var creditsShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show a user's credit balance",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCreditsShow,
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <user> <amount>",
	Short: "Add credits to a user's balance",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditsGrant,
}

func init() {
	creditsCmd.AddCommand(creditsShowCmd, creditsGrantCmd)
	rootCmd.AddCommand(creditsCmd)
}

func runCreditsShow(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	user := userID
	if len(args) == 1 {
		user = args[0]
	}
	balance, err := c.Admission.Balance(user)
	if err != nil {
		return err
	}
	ui.Field(cmd.OutOrStdout(), user, balance)
	return nil
}

func runCreditsGrant(cmd *cobra.Command, args []string) error {
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive integer, got %q", args[1])
	}

	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// Balance creates the user with the default grant if needed.
	if _, err := c.Admission.Balance(args[0]); err != nil {
		return err
	}
	if err := c.Store.AddCredits(args[0], amount); err != nil {
		return err
	}
	balance, err := c.Admission.Balance(args[0])
	if err != nil {
		return err
	}
	ui.Successf(cmd.OutOrStdout(), "%s now has %d credits", args[0], balance)
	return nil
}
