package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huangsam/xray/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// serveCmd runs the HTTP and WebSocket API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	Long: `Start the HTTP and WebSocket API used by the xray front-end.

Routes:
  POST   /api/analyze          - submit a repository for analysis
  GET    /api/status/{id}      - poll a job
  GET    /api/results/{id}     - fetch the final result of a job
  GET    /api/ws/{id}          - stream job events over WebSocket
  GET    /api/cached           - list stored analyses
  GET    /api/cached/{owner}/{repo}
  DELETE /api/cached/{owner}/{repo}
  GET    /health, /metrics

Examples:
  # Serve on the default port with Anthropic classification
  XRAY_AI_API_KEY=... xray serve

  # Serve without classification
  xray serve --ai-provider none --addr :9000`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := buildOrchestrator(cfg, cacheManager, logger)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		srv := server.New(server.ConfigFromContract(cfg), orch, logger)

		go orch.RunJanitor(ctx)
		go pruneLimiter(ctx, srv, cfg.CleanupInterval)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		var serveErr error
		select {
		case serveErr = <-errCh:
		case <-ctx.Done():
			logger.Info("Shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", "error", err)
		}
		if err := orch.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Running analyses were cancelled", "error", err)
		}
		if serveErr != nil {
			return fmt.Errorf("server failed: %w", serveErr)
		}
		return nil
	},
}

// pruneLimiter drops idle rate-limit state until ctx is done.
func pruneLimiter(ctx context.Context, srv *server.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := srv.PruneLimiter(); n > 0 {
				logger.Debug("Pruned rate-limit clients", "count", n)
			}
		}
	}
}
