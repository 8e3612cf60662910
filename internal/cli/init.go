package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "init",
	Short: "Create the changelog table if it does not exist",
	RunE:  runInit,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg := commandConfig(cmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := commandContext(cmd)

	sess, err := openSession(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.tracker.EnsureTable(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Changelog table %s is ready.\n", sess.tracker.TableName())

	return nil
}
