// Package commands implements the CLI commands for the trellis orchestrator.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/trellis/internal/app"
	"go.trai.ch/trellis/internal/build"
)

// CLI represents the command line interface for trellis.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Run(ctx context.Context, targetNames []string, opts app.RunOptions) error
	Trigger(ctx context.Context, opts app.TriggerOptions) error
	Watch(ctx context.Context, opts app.WatchOptions) error
	ReleaseConfigure(ctx context.Context, opts app.RunOptions) error
	ReleaseDeploy(ctx context.Context, opts app.RunOptions) error
	ReleaseStatus(ctx context.Context) error
	Status(ctx context.Context) error
	Serve(ctx context.Context, opts app.ServeOptions) error
	Clean(ctx context.Context, opts app.CleanOptions) error
	SetLogJSON(enable bool)
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "trellis",
		Short:         "A build-matrix orchestrator for multi-platform pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().Bool("log-json", false, "Write log records as JSON")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if logJSON, _ := cmd.Flags().GetBool("log-json"); logJSON {
			a.SetLogJSON(true)
		}
	}

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newTriggerCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newReleaseCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// SetInput sets the stream trigger reads changed paths from.
func (c *CLI) SetInput(in io.Reader) {
	c.rootCmd.SetIn(in)
}

// addRunFlags registers the flags shared by every command that dispatches jobs.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringToStringP("param", "p", nil, "Override a parameter (name=value), repeatable")
	cmd.Flags().IntP("parallelism", "j", 0, "Maximum number of concurrently dispatched jobs")
}

func runOptions(cmd *cobra.Command) app.RunOptions {
	params, _ := cmd.Flags().GetStringToString("param")
	parallelism, _ := cmd.Flags().GetInt("parallelism")
	return app.RunOptions{Params: params, Parallelism: parallelism}
}
