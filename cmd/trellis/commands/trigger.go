package commands

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/trellis/internal/app"
	"go.trai.ch/zerr"
)

func (c *CLI) newTriggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger [paths...]",
		Short: "Run the jobs triggered by a set of changed paths",
		Long: "Run the jobs whose trigger rules accept the changed paths.\n" +
			"Paths are read from the arguments, or one per line from stdin when none are given.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						paths = append(paths, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return zerr.Wrap(err, "failed to read changed paths")
				}
			}
			return c.app.Trigger(cmd.Context(), app.TriggerOptions{
				RunOptions: runOptions(cmd),
				Paths:      paths,
			})
		},
	}
	addRunFlags(cmd)
	return cmd
}
