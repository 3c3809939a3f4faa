package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Drop tombstones from the database and save it",
		Long: `Rewrite the database without tombstoned log entries.

Compaction renumbers the event log, rebuilds the derived caches by replaying
it, and saves the result. The previous snapshot is kept as a .old file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, _, err := loadStore(rootOpts, zapcore.WarnLevel)
			if err != nil {
				return err
			}
			before := st.Len()
			st.Compact()
			if err := st.Save(); err != nil {
				return WrapExitError(ExitFailure, "failed to save database", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compacted %d entries into %d events\n", before, st.Len())
			return nil
		},
	}
	return cmd
}
