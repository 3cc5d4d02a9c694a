package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devrev/bqsync/internal/model"
)

// SyncTableOptions holds flags for the sync table command.
type SyncTableOptions struct {
	*RootOptions
	ChunkSize int
	Mode      string
}

// SyncDatasetOptions holds flags for the sync dataset command.
type SyncDatasetOptions struct {
	*RootOptions
	Exclude []string
}

func newSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy warehouse tables into PostgreSQL",
	}
	cmd.AddCommand(newSyncTableCommand(rootOpts))
	cmd.AddCommand(newSyncDatasetCommand(rootOpts))
	return cmd
}

func newSyncTableCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncTableOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "table <dataset> <table>",
		Short: "Sync one table",
		Long: `Copy one BigQuery table into the PostgreSQL schema named after its dataset.

Tables larger than the chunk size are read in LIMIT/OFFSET pages; the first
page honours --mode and later pages are appended.

Example:
  bqsync sync table sales orders --chunksize 5000
  bqsync sync table sales orders --mode append --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("chunksize") && opts.ChunkSize <= 0 {
				return WrapExitError(ExitCommandError, "--chunksize must be positive", nil)
			}
			mode := model.WriteMode(opts.Mode)
			if !mode.Valid() {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("--mode must be %q or %q", model.WriteModeReplace, model.WriteModeAppend), nil)
			}

			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				job, err := app.Syncer.SyncTable(ctx, args[0], args[1], opts.ChunkSize, mode)
				if job != nil {
					if rerr := out.Render(job); rerr != nil {
						return rerr
					}
				}
				if err != nil {
					return WrapExitError(ExitFailure, "sync failed", err)
				}
				if job != nil && job.Failed() {
					return WrapExitError(ExitFailure, "sync failed", errors.New(job.Message))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.ChunkSize, "chunksize", 0, "rows per page (default from sync.chunk_size)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(model.WriteModeReplace), "write mode for the first page (replace|append)")

	return cmd
}

func newSyncDatasetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncDatasetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dataset <dataset>",
		Short: "Sync every table of a dataset",
		Long: `Sync every table of a BigQuery dataset, one at a time, replacing each mirror.

A failing table is recorded in the results and the pass continues.

Example:
  bqsync sync dataset sales --exclude tmp_orders,staging`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				job, err := app.Syncer.SyncDataset(ctx, args[0], opts.Exclude)
				if job != nil {
					if rerr := out.Render(job); rerr != nil {
						return rerr
					}
				}
				if err != nil {
					return WrapExitError(ExitFailure, "dataset sync failed", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "tables to skip")

	return cmd
}

func newStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List mirrored tables with their size and maintenance times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				statuses, err := app.Syncer.GetSyncStatus(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get sync status", err)
				}
				return out.Render(statuses)
			})
		},
	}
}

func newAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <dataset> <table>",
		Short: "Show size, tuple and column statistics of a mirrored table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				analysis, err := app.Syncer.AnalyzeTable(ctx, args[0], args[1])
				if err != nil {
					return WrapExitError(ExitFailure, "table analysis failed", err)
				}
				return out.Render(analysis)
			})
		},
	}
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	File string
}

func newQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a read-only SELECT against the warehouse",
		Long: `Run a SELECT or WITH statement against BigQuery. Results are cached.

Example:
  bqsync query "SELECT name FROM sales.customers LIMIT 10"
  bqsync query --file report.sql --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := querySource(opts.File, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "no query", err)
			}

			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				resp, err := app.Explorer.Query(ctx, sql)
				if err != nil {
					return WrapExitError(ExitFailure, "query failed", err)
				}
				return out.Render(resp)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the statement from a file")

	return cmd
}

func querySource(file string, args []string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("pass either a statement or --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		return args[0], nil
	default:
		return "", fmt.Errorf("a statement or --file is required")
	}
}

func newDatasetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List warehouse datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				datasets, err := app.Explorer.ListDatasets(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list datasets", err)
				}
				return out.Render(datasets)
			})
		},
	}
}

func newTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <dataset>",
		Short: "List the tables of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				tables, err := app.Explorer.ListTables(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list tables", err)
				}
				return out.Render(tables)
			})
		},
	}
}

func newInfoCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "info <dataset> <table>",
		Short: "Show the schema, row count and a preview of a warehouse table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return WrapExitError(ExitCommandError, "--limit must be positive", nil)
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				info, err := app.Explorer.TableInfo(ctx, args[0], args[1], limit)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get table info", err)
				}
				return out.Render(info)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "preview rows")

	return cmd
}

func newStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dataset>",
		Short: "Summarize the tables of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				stats, err := app.Explorer.DatasetStats(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get dataset stats", err)
				}
				return out.Render(stats)
			})
		},
	}
}
