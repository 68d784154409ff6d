// Package cli provides the image-editor command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	backend    string
	serviceURL string
	vision     string
	store      string
	outDir     string
	logLevel   string
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	opts   globalOptions
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "image-editor",
		Short: "Crop selection and batch image transformations",
		Long: `image-editor applies image operations one at a time or as a chained batch,
through an in-process engine or a remote image processing service.

Crop selections are given in display coordinates of an overlay and mapped
back to image pixels, the same way an interactive editor does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")
	flags.StringVar(&app.opts.backend, "backend", "", "Processing backend: local or remote (overrides config)")
	flags.StringVar(&app.opts.serviceURL, "url", "", "Remote processing service URL (overrides config)")
	flags.StringVar(&app.opts.vision, "vision", "", "Subject suggestion backend: ollama, llamacpp, saliency or none")
	flags.StringVar(&app.opts.store, "store", "", "Result store: memory or badger")
	flags.StringVarP(&app.opts.outDir, "out", "o", "", "Output directory (overrides config)")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newInfoCmd(),
		app.newApplyCmd(),
		app.newBatchCmd(),
		app.newCropCmd(),
		app.newSuggestCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "image-editor version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
