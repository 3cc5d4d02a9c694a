package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/handler"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/server"
	"github.com/devrev/bqsync/internal/util/workerpool"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
}

func newServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API and, when enabled, the Prometheus metrics server.

SIGINT or SIGTERM drains in-flight requests before exiting.

Example:
  bqsync serve --config /etc/bqsync/config.yaml
  BQSYNC_SERVER_PORT=9000 bqsync serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, _ *OutputFormatter) error {
				if opts.Port > 0 {
					app.Config.Server.Port = opts.Port
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if err := runServer(ctx, app); err != nil {
					return WrapExitError(ExitFailure, "server error", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "HTTP port (default from server.port)")

	return cmd
}

// runServer serves until ctx is done, then shuts everything down.
func runServer(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "api",
		MaxWorkers: cfg.Workers.MaxWorkers,
		QueueSize:  cfg.Workers.QueueSize,
		Logger:     logger,
	})
	app.Health.Register("workers", func(context.Context) error {
		if stats := pool.Stats(); stats.Saturated() {
			return fmt.Errorf("worker queue full (%d/%d)", stats.QueuedTasks, stats.QueueSize)
		}
		return nil
	})

	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(app.Syncer, app.Explorer, pool, errorHandler, logger)
	srv := server.NewServer(cfg, handlers, app.Health, app.Metrics, errorHandler, logger)
	srv.SetupRoutes()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(app.Metrics, cfg.Metrics.Port, cfg.Metrics.Path, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server: %w", err))
			}
		}
		if err := pool.Stop(cfg.Server.ShutdownTimeout); err != nil {
			errs = append(errs, err)
		}

		if len(errs) > 0 {
			logger.Error("Shutdown incomplete", zap.Error(errors.Join(errs...)))
			return errors.Join(errs...)
		}
		logger.Info("Shutdown complete")
		return nil
	})

	return g.Wait()
}
