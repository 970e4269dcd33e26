package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	codebases  string
	logLevel   string
	noColor    bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "ruleminer",
		Short: "Extract business rules from source code with an LLM",
		Long: `ruleminer walks configured codebases, builds a file dependency graph,
asks an LLM to extract the business rules of every source file and writes
one markdown summary report per analysis run.

Codebases are listed in config/codebases.yaml; settings come from
ruleminer.yaml and RE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	fs := root.PersistentFlags()
	fs.StringVar(&opts.configFile, "config", "", "settings file (default is ./ruleminer.yaml)")
	fs.StringVar(&opts.codebases, "codebases", "", "codebases file (default is ./config/codebases.yaml)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.SetOut(opts.stdout)
	root.SetErr(opts.stderr)

	root.AddCommand(
		newRunCmd(opts),
		newReportCmd(opts),
		newStatusCmd(opts),
		newSearchCmd(opts),
		newResetCmd(opts),
		newServeCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// withApp builds the app for one command invocation and closes it afterwards
func withApp(opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// execute runs the CLI and returns the process exit code
func execute(args []string) int {
	opts := &rootOptions{stdout: os.Stdout, stderr: os.Stderr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Default().Warn("shutdown.signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	root := newRootCmd(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return reportError(opts.stderr, err, opts.noColor)
}
