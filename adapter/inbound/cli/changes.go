package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajkula/plistener/adapter/outbound/storage"
	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/model"
)

// ChangesOptions holds flags for the changes command.
type ChangesOptions struct {
	*RootOptions
	Path  string
	Limit int
}

// NewChangesCommand creates the changes command.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changes [id]",
		Short: "Print recorded changes, newest first",
		Long: `Print change records as YAML documents, newest first. With an id, print
only that record.

Example:
  plistener changes --path ~/Library/Preferences/com.apple.dock.plist
  plistener changes 20240102T030405.678Z_1a2b3c4_com.apple.dock.plist`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "only changes of this file")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "print at most n changes (0 = all)")

	return cmd
}

func runChanges(cmd *cobra.Command, opts *ChangesOptions, args []string) error {
	app, shutdown, err := opts.openApp(config.Overrides{}, false)
	if err != nil {
		return err
	}
	defer shutdown()

	var events []*model.ChangeEvent
	if len(args) == 1 {
		event, err := app.History.GetChange(cmd.Context(), args[0])
		if err != nil {
			return WrapExitError(ExitFailure, "change not found", err)
		}
		events = []*model.ChangeEvent{event}
	} else {
		events, err = app.History.ListChanges(cmd.Context(), opts.Path)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list changes", err)
		}
	}

	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}

	out := cmd.OutOrStdout()
	for i, event := range events {
		data, err := storage.EncodeChange(event)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode change", err)
		}
		if i > 0 {
			fmt.Fprintln(out, "---")
		}
		fmt.Fprintf(out, "# %s\n", event.ID)
		out.Write(data)
	}
	return nil
}
