// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the output formats and provides a clean API for the commands.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteResult prints an analysis result using the configured output format.
func (ow *OutWriter) WriteResult(result *schema.AnalysisResult, cfg *contract.Config, duration time.Duration) error {
	return PrintAnalysisResult(result, cfg, duration)
}

// WriteCachedList prints the cached-analysis listing using the configured output format.
func (ow *OutWriter) WriteCachedList(list []schema.CachedSummary, cfg *contract.Config) error {
	return PrintCachedList(list, cfg)
}
