package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/trellis/internal/adapters/httpapi"
	"go.trai.ch/trellis/internal/app"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest run of every job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Status(cmd.Context())
		},
	}
}

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve job and release status over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return c.app.Serve(cmd.Context(), app.ServeOptions{Addr: addr})
		},
	}
	cmd.Flags().String("addr", httpapi.DefaultAddr, "Listen address")
	return cmd
}
