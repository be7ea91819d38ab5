package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/huangsam/xray/core"
	"github.com/huangsam/xray/internal/outwriter"
	"github.com/huangsam/xray/internal/stream"
	"github.com/huangsam/xray/schema"
	"github.com/spf13/cobra"
)

// analyzeCmd runs one analysis in-process and prints the report.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Analyze a repository and print the ownership report",
	Long: `Run the full pipeline for one repository without a server.

Progress is printed to stderr. The report is printed to stdout as tables,
or as the complete result document with --output json.

Examples:
  # Last six months of acme/billing
  xray analyze https://github.com/acme/billing

  # A year of history as JSON
  xray analyze acme/billing --months 12 --output json --output-file billing.json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt)
		defer stop()

		orch, err := buildOrchestrator(cfg, cacheManager, logger)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}

		start := time.Now()
		job, _, err := orch.Submit(ctx, args[0], cfg.Months)
		if err != nil {
			return err
		}
		sub, err := orch.Subscribe(job.ID)
		if err != nil {
			return err
		}

		final, err := followJob(ctx, orch, sub, cmd.ErrOrStderr())
		orch.Unsubscribe(sub)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if ctx.Err() != nil {
			// Interrupted: cancel the pipeline instead of waiting for it
			expired, expire := context.WithCancel(shutdownCtx)
			expire()
			shutdownCtx = expired
		}
		_ = orch.Shutdown(shutdownCtx)

		if err != nil {
			return err
		}
		if final.Status == schema.JobError {
			return fmt.Errorf("analysis failed: %s", final.ErrorMessage)
		}
		return outwriter.NewOutWriter().WriteResult(final.Result, cfg, time.Since(start))
	},
}

// followJob prints stream events to w until the job is terminal and returns the final job record.
func followJob(ctx context.Context, orch *core.Orchestrator, sub *stream.Subscription, w io.Writer) (schema.Job, error) {
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return orch.Job(sub.JobID())
			}
			switch ev.Type {
			case schema.EventProgress:
				fmt.Fprintf(w, "[%d/%d] %s\n", ev.Stage, ev.TotalStages, ev.Message)
			case schema.EventPartialResult:
				fmt.Fprintf(w, "[%d/%d] Partial results ready\n", ev.Stage, ev.TotalStages)
			case schema.EventError:
				fmt.Fprintf(w, "Error: %s\n", ev.Message)
			}
		case <-ctx.Done():
			return schema.Job{}, ctx.Err()
		}
	}
}
