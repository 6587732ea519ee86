package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajkula/plistener/adapter/inbound/rest"
	"github.com/ajkula/plistener/adapter/inbound/websocket"
	"github.com/ajkula/plistener/adapter/outbound/machineid"
	"github.com/ajkula/plistener/config"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	HTTP bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, prune, then watch for changes",
		Long: `Scan every configured root, prune expired history, then watch the roots
and record every change until interrupted.

The batch in progress when SIGINT or SIGTERM arrives is finished first.

Example:
  plistener run --dir ~/.plistener
  plistener run --http`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.HTTP, "http", false, "serve the HTTP view even if disabled in config")

	return cmd
}

func runTracker(cmd *cobra.Command, opts *RunOptions) error {
	app, shutdown, err := opts.openApp(config.Overrides{HTTPEnabled: opts.HTTP}, true)
	if err != nil {
		return err
	}
	defer shutdown()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			app.Logger.Info("Received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 2)
	pending := 1

	go func() {
		errCh <- app.Tracker.Run(ctx)
	}()

	if app.Config.HTTP.Enabled {
		instance := machineid.InstanceID(machineid.NewHardwareMachineID(), app.Logger)
		wsHandler := websocket.NewHandler(app.History, instance, app.Logger)
		server := rest.NewServer(
			app.Config.HTTPAddr(),
			rest.NewHandler(app.History, instance, app.Logger),
			app.Logger,
			rest.Route{Path: "/api/ws/changes", Handler: wsHandler.HandleConnection},
		)
		pending++
		go func() {
			defer wsHandler.Cleanup()
			errCh <- server.ListenAndServe(ctx)
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "HTTP view on http://%s\n", app.Config.HTTPAddr())
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Tracking changes. Press Ctrl-C to stop.")

	// the first to return stops the other
	var runErr error
	for ; pending > 0; pending-- {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
		cancel()
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "tracker error", runErr)
	}

	app.Logger.Info("Tracker stopped gracefully")
	return nil
}
