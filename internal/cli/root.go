// Package cli implements the bqsync command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devrev/bqsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json" | "yaml"
	Verbose    bool

	// Bootstrap overrides NewApp (for testing).
	Bootstrap Bootstrap
	// Logger overrides the configured logger (for testing).
	Logger *zap.Logger
}

// NewRootCommand creates the root command for the bqsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with os.Args and returns the process exit code.
// Errors are written to stderr in the selected format.
func Execute() int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	if err := cmd.Execute(); err != nil {
		format := opts.Format
		if !isValidFormat(format) {
			format = FormatText
		}
		errOut := &OutputFormatter{Format: format, Writer: cmd.ErrOrStderr()}
		_ = errOut.RenderError(err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bqsync",
		Short: "Explore BigQuery datasets and mirror tables into PostgreSQL",
		Long: `bqsync answers cached read-only questions about BigQuery datasets and
copies warehouse tables into PostgreSQL in chunks.

Run "bqsync serve" for the HTTP API, or use the sync, status and query
commands directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newDatasetsCommand(opts))
	cmd.AddCommand(newTablesCommand(opts))
	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withApp loads configuration, builds the App and runs fn with it.
func (opts *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}

	logger := opts.Logger
	if logger == nil {
		logger = newLogger(cfg.Logging)
		defer logger.Sync()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bootstrap := opts.Bootstrap
	if bootstrap == nil {
		bootstrap = NewApp
	}
	app, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer app.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return fn(ctx, app, out)
}
