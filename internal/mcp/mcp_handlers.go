package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	analyzer      Analyzer
	defaultMonths int
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(jsonData))
}

func (h *toolHandler) handleAnalyzeRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL := request.GetString("repo_url", "")
	months := request.GetInt("months", 0)
	if months == 0 {
		months = h.defaultMonths
	}

	job, created, err := h.analyzer.Submit(ctx, repoURL, months)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", err)), nil
	}
	if !request.GetBool("wait", false) {
		return jsonResult(map[string]any{"job_id": job.ID, "status": job.Status, "created": created}), nil
	}

	final, err := h.analyzer.Wait(ctx, job.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("waiting for job %s failed: %v", job.ID, err)), nil
	}
	if final.Status == schema.JobError {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %s", final.ErrorMessage)), nil
	}
	return jsonResult(final.Result), nil
}

func (h *toolHandler) handleGetJobStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("job_id", "")
	view, err := h.analyzer.Status(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job %q not found", id)), nil
	}
	return jsonResult(view), nil
}

func (h *toolHandler) handleGetJobResult(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("job_id", "")
	result, err := h.analyzer.Result(id)
	switch {
	case errors.Is(err, contract.ErrNotComplete):
		return mcp.NewToolResultError(fmt.Sprintf("job %q is not complete yet", id)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("job %q not found", id)), nil
	}
	return jsonResult(result), nil
}

func (h *toolHandler) handleListCached(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := h.analyzer.ListCached()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing cached analyses failed: %v", err)), nil
	}
	return jsonResult(list), nil
}

func (h *toolHandler) handleGetCached(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := schema.RepoIdentity(request.GetString("repo", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := h.analyzer.Cached(identity)
	switch {
	case errors.Is(err, contract.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("no cached analysis for %s", identity)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("reading cached analysis failed: %v", err)), nil
	}
	return jsonResult(entry), nil
}
