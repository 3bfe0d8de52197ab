package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/api"
	"github.com/ad-itya07/Dionysus/internal/metrics"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveOrigins     []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the ingestion and question answering API, refresh the commit
history of completed projects in the background and expose Prometheus
metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "metrics listen address (overrides server.metrics_addr)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allow-origin", nil, "CORS origins allowed to call the API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.Logger
	cfg := c.Config

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	metricsAddr := cfg.Server.MetricsAddr
	if serveMetricsAddr != "" {
		metricsAddr = serveMetricsAddr
	}
	pollInterval, err := cfg.Server.CommitPollInterval()
	if err != nil {
		return fmt.Errorf("invalid commit_poll_interval: %w", err)
	}

	go func() {
		if err := c.Poller.Run(ctx, pollInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("commit poller stopped", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server := api.New(api.Deps{
		Service:      c.Service,
		Answerer:     c.Answerer,
		Admission:    c.Admission,
		Broker:       c.Broker,
		Logger:       logger,
		AllowOrigins: serveOrigins,
		AccessLog:    verbose,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving api", "addr", addr)
		errCh <- server.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	// Background runs share ctx and stop at their next checkpoint.
	c.Service.Wait()
	logger.Info("stopped")
	return nil
}
