package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Configure, deploy and inspect a release",
	}

	cmd.AddCommand(c.newReleaseConfigureCmd())
	cmd.AddCommand(c.newReleaseDeployCmd())
	cmd.AddCommand(c.newReleaseStatusCmd())

	return cmd
}

func (c *CLI) newReleaseConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Start a release attempt and bind its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.ReleaseConfigure(cmd.Context(), runOptions(cmd))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func (c *CLI) newReleaseDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the configured version to every platform and publish it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.ReleaseDeploy(cmd.Context(), runOptions(cmd))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func (c *CLI) newReleaseStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the release record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.ReleaseStatus(cmd.Context())
		},
	}
}
