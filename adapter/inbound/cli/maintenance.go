package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajkula/plistener/config"
)

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every change record, keeping versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, shutdown, err := rootOpts.openApp(config.Overrides{}, false)
			if err != nil {
				return err
			}
			defer shutdown()

			if err := app.Tracker.Clear(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "clear failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Change records cleared")
			return nil
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every version and every change record",
		Long: `Delete all stored versions and change records. The next scan records
every tracked file as added again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, shutdown, err := rootOpts.openApp(config.Overrides{}, false)
			if err != nil {
				return err
			}
			defer shutdown()

			if err := app.Tracker.Reset(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Versions and change records reset")
			return nil
		},
	}
}
