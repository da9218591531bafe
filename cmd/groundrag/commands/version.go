package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/version"
)

// NewVersionCmd prints build metadata. It overrides the root pre-run so it
// still works when the configuration is broken.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version, commit and build date",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "groundrag", version.String())
			return err //nolint:wrapcheck // CLI entry point
		},
	}
}
