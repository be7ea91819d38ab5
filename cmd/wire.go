package cmd

import (
	"log/slog"

	"github.com/huangsam/xray/core"
	"github.com/huangsam/xray/internal/classifier"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/ingest"
	"github.com/huangsam/xray/internal/iocache"
	"github.com/huangsam/xray/internal/stream"
	"github.com/huangsam/xray/internal/telemetry"
)

// buildOrchestrator wires ingestion, classification, streaming and persistence
// into an orchestrator for the given configuration.
func buildOrchestrator(cfg *contract.Config, mgr contract.CacheManager, logger *slog.Logger) (*core.Orchestrator, error) {
	git := contract.NewLocalGitClient()
	gh := ingest.NewGHClient(ingest.ExecRunner, logger)
	ingestor := ingest.NewService(git, gh, ingest.OptionsFromConfig(cfg), logger)

	clf, err := classifier.NewClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	if clf == nil {
		logger.Warn("No classification provider configured; classification stages will be skipped")
	}

	hub := stream.NewHub(stream.WithDropHook(func(string) { telemetry.RecordStreamDrop() }))

	deps := core.Deps{
		Jobs:       iocache.NewMemoryJobStore(),
		Hub:        hub,
		Ingestor:   ingestor,
		Classifier: clf,
		Logger:     logger,
	}
	if mgr != nil {
		deps.Results = mgr.GetResultCache()
		deps.Runs = mgr.GetRunStore()
	}
	return core.NewOrchestrator(deps, core.OptionsFromConfig(cfg)), nil
}
