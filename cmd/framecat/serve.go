package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/framing"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		metricsAddr string
		idleTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		Long: `Run a server that sends every message it receives back to the sender.
Each connection is split into read and write halves; replies are flushed
whenever no further request is buffered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("idle-timeout") {
				cfg.IdleTimeout = idleTimeout
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, root.logger)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", time.Minute, "Close connections that send nothing for this long (0 disables)")

	return cmd
}

func runServe(ctx context.Context, cfg config, logger framing.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := framing.Listen("tcp", cfg.Addr,
		framing.ServerLoggerOption(logger),
		framing.ServerShutdownTimeoutOption(shutdownTimeout),
	)
	if err != nil {
		return err
	}

	logger.Info("serving", "addr", server.Addr().String(), "mode", cfg.Mode.String(), "codec", cfg.Codec)

	group, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		httpServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}

		group.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		opts := cfg.options(logger, registry)
		return newEndpoint(cfg).serve(ctx, server, cfg.IdleTimeout, opts, logger)
	})

	return group.Wait()
}

func newMetricsRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}
