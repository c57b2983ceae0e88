package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/trellis/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stored runs and published artifacts",
		Long:  "Remove stored runs and published artifacts. Build counters and the release record are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			artifacts, _ := cmd.Flags().GetBool("artifacts")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.CleanOptions{
				Runs:      false,
				Artifacts: false,
			}

			switch {
			case all:
				opts.Runs = true
				opts.Artifacts = true
			case artifacts:
				opts.Artifacts = true
			default:
				// Default behavior: clean run records
				opts.Runs = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolP("artifacts", "a", false, "Clean published artifacts only")
	cmd.Flags().Bool("all", false, "Clean run records and published artifacts")

	return cmd
}
