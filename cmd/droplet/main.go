package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"droplet/internal/app"
	dropleterrors "droplet/internal/errors"
	"droplet/internal/ui"
	"droplet/pkg/config"
)

// version is set at build time via ldflags
var version = "dev"

// options holds everything parsed from the command line.
type options struct {
	flags app.Flags
	debug bool
}

// bindFlags registers droplet's flags on fs.
func bindFlags(fs *pflag.FlagSet, opts *options) {
	fs.BoolVar(&opts.flags.NoDNS, "no-dns", false, "Skip updating the DNS record")
	fs.BoolVar(&opts.flags.NoPull, "no-pull", false, "Skip pulling changes before the service starts")
	fs.BoolVar(&opts.flags.NoPush, "no-push", false, "Skip pushing changes after the service exits")
	fs.BoolVar(&opts.flags.NoSync, "no-sync", false, "Skip both pulling and pushing")
	fs.BoolVar(&opts.debug, "debug", false, "Write debug-level records to the log file")
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "droplet [config]",
		Short:   "Droplet - run a service with DNS and state synchronization",
		Version: version,
		Long: `Droplet brings up a long-running service on this machine. Before the service
starts it points a DNS record at the machine and pulls the service's state tree
from its remote repository; after the service exits it pushes the state back.

The config file defaults to ./` + config.DefaultFileName + `. Every relative path in it is
resolved against the directory that contains it.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "./" + config.DefaultFileName
			if len(args) == 1 {
				configPath = args[0]
			}
			*exitCode = run(cmd.Context(), configPath, opts, stdout, stderr)
			return nil
		},
	}

	bindFlags(cmd.Flags(), opts)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// run executes one droplet pipeline and returns the process exit code.
func run(ctx context.Context, configPath string, opts *options, stdout, stderr io.Writer) int {
	console := ui.NewConsoleWithWriters(stdout, stderr)

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}

	handler, err := dropleterrors.NewErrorHandler(console, level)
	if err != nil {
		fmt.Fprintf(stderr, "warning: logging disabled: %v\n", err)
		handler = dropleterrors.NewDiscardHandler(console)
	}
	defer handler.Close()
	slog.SetDefault(handler.Logger())

	slog.Info("Droplet starting", "version", version, "configPath", configPath)

	if err := app.NewDefault(console).Run(ctx, configPath, opts.flags); err != nil {
		handler.Handle(err)
		return dropleterrors.ExitCode(err)
	}
	return dropleterrors.ExitSuccess
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode := dropleterrors.ExitSuccess
	cmd := newRootCmd(stdout, stderr, &exitCode)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		return dropleterrors.ExitFailure
	}
	return exitCode
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
