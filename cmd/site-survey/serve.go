package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/site-survey/internal/server"
)

const metricsPath = "/metrics"

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the survey tools over MCP on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if a.settings.Metrics.Enabled {
				stop := serveMetrics(a, c)
				defer stop()
			}

			opts := []server.Option{
				server.WithLogger(a.logger),
				server.WithVersion(Version),
			}
			if c.store != nil {
				opts = append(opts, server.WithStore(c.store))
			}
			if c.ocr != nil {
				opts = append(opts, server.WithOCR(c.ocr))
			}

			a.logger.Info("MCP server starting", zap.String("version", Version), zap.String("commit", GitCommit))
			err = server.New(c.pipeline, opts...).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// serveMetrics exposes the registry over HTTP and returns its shutdown func.
func serveMetrics(a *app, c *components) func() {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.settings.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("metrics endpoint listening", zap.String("addr", srv.Addr), zap.String("path", metricsPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
