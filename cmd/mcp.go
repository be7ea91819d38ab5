package cmd

import (
	"context"
	"fmt"

	"github.com/huangsam/xray/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the xray MCP server",
	Long:  `Launch an MCP server over stdio that lets AI agents analyze repositories and read stored results.`,
	// Logs go to stderr so stdio stays reserved for the protocol
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		orch, err := buildOrchestrator(cfg, cacheManager, logger)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = orch.Shutdown(ctx)
		}()
		return mcp.StartMCPServer(rootCtx, orch, cfg.Months)
	},
}
