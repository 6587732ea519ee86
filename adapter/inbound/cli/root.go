package cli

import (
	"github.com/spf13/cobra"

	"github.com/ajkula/plistener/adapter/outbound/logging"
	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// Version is set at build time
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Dir        string
	ConfigPath string
	LogLevel   string

	// NewLogger builds the logger once config is loaded (overridable in tests)
	NewLogger func(cfg *config.Config) outbound.Logger
}

// NewRootCommand creates the root command of the plistener CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		NewLogger: logging.NewSlogAdapter,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plistener",
		Short: "plistener - track changes to property lists",
		Long: `Watch plist (and yaml/json) files, keep a version of every change and
record a structured diff between versions.

Versions are stored under <dir>/data, change records under <dir>/changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "d", ".", "working directory holding data/ and changes/")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default <dir>/config.yml or $"+config.ConfigPathEnv+")")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig resolves the configuration for a command
func (o *RootOptions) loadConfig(overrides config.Overrides) (*config.Config, error) {
	overrides.ConfigPath = o.ConfigPath
	overrides.LogLevel = o.LogLevel

	cfg, err := config.Load(o.Dir, overrides)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// openApp loads config and wires the app; the returned func flushes the logger
func (o *RootOptions) openApp(overrides config.Overrides, watch bool) (*App, func(), error) {
	cfg, err := o.loadConfig(overrides)
	if err != nil {
		return nil, nil, err
	}

	logger := o.NewLogger(cfg)
	app, err := NewApp(cfg, logger, watch)
	if err != nil {
		logger.Shutdown()
		return nil, nil, WrapExitError(ExitFailure, "failed to initialize", err)
	}

	return app, logger.Shutdown, nil
}
