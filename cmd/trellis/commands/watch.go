package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/trellis/internal/adapters/watcher"
	"go.trai.ch/trellis/internal/app"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run triggered jobs whenever files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debounce, _ := cmd.Flags().GetDuration("debounce")
			return c.app.Watch(cmd.Context(), app.WatchOptions{
				RunOptions: runOptions(cmd),
				Debounce:   debounce,
			})
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Duration("debounce", watcher.DefaultDebounceWindow, "Quiet period before a change-set is dispatched")
	return cmd
}
