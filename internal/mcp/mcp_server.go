// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/xray/core"
	"github.com/huangsam/xray/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Analyzer is the part of the orchestrator exposed as MCP tools.
type Analyzer interface {
	Submit(ctx context.Context, repoURL string, months int) (schema.Job, bool, error)
	Status(id string) (schema.JobStatusView, error)
	Result(id string) (*schema.AnalysisResult, error)
	Wait(ctx context.Context, id string) (schema.Job, error)
	Cached(identity string) (*schema.CacheEntry, error)
	ListCached() ([]schema.CachedSummary, error)
}

var _ Analyzer = (*core.Orchestrator)(nil) // Compile-time check

// NewMCPServer initializes and configures the xray MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(analyzer Analyzer, defaultMonths int) *server.MCPServer {
	s := server.NewMCPServer(
		"Xray Team Analysis Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		analyzer:      analyzer,
		defaultMonths: defaultMonths,
	}

	// --- 1. Tool: analyze_repository ---
	s.AddTool(mcp.NewTool("analyze_repository",
		mcp.WithDescription("Analyze the contributors, module ownership and review culture of a GitHub repository."),
		mcp.WithString("repo_url", mcp.Description("Repository URL or owner/repo slug."), mcp.Required()),
		mcp.WithNumber("months", mcp.Description("Months of history to analyze (1-24). Defaults to 6.")),
		mcp.WithBoolean("wait", mcp.Description("Block until the analysis finishes and return the result.")),
	), h.handleAnalyzeRepository)

	// --- 2. Tool: get_job_status ---
	s.AddTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the stage and progress of an analysis job."),
		mcp.WithString("job_id", mcp.Description("The job id returned by analyze_repository."), mcp.Required()),
	), h.handleGetJobStatus)

	// --- 3. Tool: get_job_result ---
	s.AddTool(mcp.NewTool("get_job_result",
		mcp.WithDescription("Get the final result of a completed analysis job."),
		mcp.WithString("job_id", mcp.Description("The job id returned by analyze_repository."), mcp.Required()),
	), h.handleGetJobResult)

	// --- 4. Tool: list_cached_analyses ---
	s.AddTool(mcp.NewTool("list_cached_analyses",
		mcp.WithDescription("List repositories with a stored analysis, most recent first."),
	), h.handleListCached)

	// --- 5. Tool: get_cached_analysis ---
	s.AddTool(mcp.NewTool("get_cached_analysis",
		mcp.WithDescription("Get the stored analysis of a repository."),
		mcp.WithString("repo", mcp.Description("Repository URL or owner/repo slug."), mcp.Required()),
	), h.handleGetCached)

	return s
}

// StartMCPServer serves the xray tools over stdio.
func StartMCPServer(_ context.Context, analyzer Analyzer, defaultMonths int) error {
	s := NewMCPServer(analyzer, defaultMonths)
	return server.ServeStdio(s)
}
