package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/model"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Paths []string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record what changed since the last run",
		Long: `Walk every configured root once. Files without a version are recorded as
added, files whose modification time has no version yet as modified.

Example:
  plistener scan --path ~/Library/Preferences`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Paths, "path", "p", nil, "roots to scan instead of watch.paths")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions) error {
	app, shutdown, err := opts.openApp(config.Overrides{Paths: opts.Paths}, false)
	if err != nil {
		return err
	}
	defer shutdown()

	result, err := app.Tracker.Scan(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "scan failed", err)
	}

	printBatchResult(cmd.OutOrStdout(), result)
	return nil
}

func printBatchResult(w io.Writer, result *model.BatchResult) {
	fmt.Fprintf(w, "Processed %d file(s): %d ok, %d recoverable, %d fatal\n",
		len(result.Results),
		result.Count(model.StatusSuccess),
		result.Count(model.StatusRecoverable),
		result.Count(model.StatusFatal),
	)
	for _, failed := range result.Failed() {
		fmt.Fprintf(w, "  %s %s (%s): %v\n", failed.Type, failed.Path, failed.Status, failed.Err)
	}
}

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	KeepMinutes int
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired changes and the versions only they reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.KeepMinutes, "keep", 0, "retention window in minutes (default retention.keepMinutes)")

	return cmd
}

func runPrune(cmd *cobra.Command, opts *PruneOptions) error {
	app, shutdown, err := opts.openApp(config.Overrides{KeepMinutes: opts.KeepMinutes}, false)
	if err != nil {
		return err
	}
	defer shutdown()

	result, err := app.Tracker.Prune(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "prune failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d change(s) and %d version(s)\n",
		result.EventsDeleted, result.VersionsDeleted)
	return nil
}
