package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/console"
	"github.com/chanwatch/chanwatch/internal/logging"
	"github.com/chanwatch/chanwatch/internal/store"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the observer process",
		Long: `Start the observer process.

The process loads the configured database snapshot, saves it back
periodically, and serves the TCP remote console until interrupted.

Example:
  chanwatch run -c config.yaml
  chanwatch run -c /etc/chanwatch/config.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObserver(rootOpts, cmd)
		},
	}
	return cmd
}

func runObserver(opts *RootOptions, cmd *cobra.Command) error {
	logger := logging.New(opts.logLevel())
	defer logger.Sync()

	st, cfg, intervals, err := loadStore(opts, opts.logLevel())
	if err != nil {
		return err
	}
	logger.Info("database ready",
		zap.String("path", cfg.Database), zap.Int("entries", st.Len()))

	saver := store.NewAutosaver(st, intervals.Autosave, logger)
	saver.Start()

	params := &reportParams{
		cfg:      cfg,
		interval: intervals.MeetingInterval,
		minUsers: cfg.MeetingUserc,
	}

	con := console.New(cfg.ConsoleHello, intervals.ConsoleTimeout, logger)
	registerOperations(con, st, params)
	if err := con.Start(cfg.ConsoleAddr()); err != nil {
		saver.Stop()
		return WrapExitError(ExitFailure, "failed to start console", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Observer started, console on %s.\n", con.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case <-cmd.Context().Done():
		logger.Info("context cancelled, shutting down")
	}

	con.Stop()
	saver.Stop()
	if st.Dirty() {
		if err := st.Save(); err != nil {
			return WrapExitError(ExitFailure, "failed to save database on shutdown", err)
		}
	}
	logger.Info("observer stopped")
	return nil
}
