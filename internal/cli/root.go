package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/chanwatch/chanwatch/internal/config"
	"github.com/chanwatch/chanwatch/internal/logging"
	"github.com/chanwatch/chanwatch/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the chanwatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chanwatch",
		Short: "Voice channel presence observer",
		Long:  "Records channel presence events into an append-only store and reconstructs meetings from them.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))

	return cmd
}

func (o *RootOptions) logLevel() zapcore.Level {
	if o.Verbose {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// loadStore opens the configured database for the one-shot commands. The
// returned store has already replayed its snapshot.
func loadStore(opts *RootOptions, level zapcore.Level) (*store.Store, config.Config, config.Durations, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, cfg, config.Durations{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	intervals, err := cfg.Intervals()
	if err != nil {
		return nil, cfg, intervals, WrapExitError(ExitCommandError, "invalid config intervals", err)
	}

	st := store.New(cfg.Database, intervals.CommentCooldown, logging.New(level))
	if err := st.Load(); err != nil {
		return nil, cfg, intervals, WrapExitError(ExitCommandError,
			fmt.Sprintf("failed to load database %s", cfg.Database), err)
	}
	return st, cfg, intervals, nil
}
