package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/stream"
	"github.com/huangsam/xray/internal/telemetry"
	"github.com/huangsam/xray/schema"
)

// ErrShuttingDown rejects submissions after Shutdown has started.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Options tunes the pipeline limits of an Orchestrator.
type Options struct {
	MaxConcurrentAnalyses int
	PoolWidth             int
	MaxPRsCode            int
	MaxPRsReview          int
	JobTTL                time.Duration
	ErrorJobTTL           time.Duration // Applies to failed jobs, capped at JobTTL
	CleanupInterval       time.Duration
}

// OptionsFromConfig extracts the orchestration options from the process configuration.
func OptionsFromConfig(cfg *contract.Config) Options {
	return Options{
		MaxConcurrentAnalyses: cfg.MaxConcurrentAnalyses,
		PoolWidth:             cfg.MaxConcurrentAI,
		MaxPRsCode:            cfg.MaxPRsCode,
		MaxPRsReview:          cfg.MaxPRsReview,
		JobTTL:                cfg.JobTTL,
		ErrorJobTTL:           cfg.ErrorJobTTL,
		CleanupInterval:       cfg.CleanupInterval,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentAnalyses <= 0 {
		o.MaxConcurrentAnalyses = contract.DefaultMaxConcurrentAnalyses
	}
	if o.PoolWidth <= 0 {
		o.PoolWidth = contract.DefaultMaxConcurrentAI
	}
	if o.MaxPRsCode <= 0 {
		o.MaxPRsCode = contract.DefaultMaxPRsCode
	}
	if o.MaxPRsReview <= 0 {
		o.MaxPRsReview = contract.DefaultMaxPRsReview
	}
	if o.JobTTL <= 0 {
		o.JobTTL = contract.DefaultJobTTL
	}
	if o.ErrorJobTTL <= 0 {
		o.ErrorJobTTL = contract.DefaultErrorJobTTL
	}
	o.ErrorJobTTL = min(o.ErrorJobTTL, o.JobTTL)
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = contract.DefaultCleanupInterval
	}
}

// Deps are the collaborators of an Orchestrator.
// Classifier, Results and Runs may be nil: the AI stages are then skipped,
// nothing is cached and no runs are tracked.
type Deps struct {
	Jobs       contract.JobStore
	Hub        *stream.Hub
	Ingestor   contract.Ingestor
	Classifier contract.Classifier
	Results    contract.ResultCache
	Runs       contract.RunStore
	Logger     *slog.Logger
}

// Orchestrator owns the job lifecycle and runs one pipeline goroutine per job.
type Orchestrator struct {
	jobs       contract.JobStore
	hub        *stream.Hub
	ingestor   contract.Ingestor
	classifier contract.Classifier
	results    contract.ResultCache
	runs       contract.RunStore
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	sem    chan struct{} // Pipeline slots
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewOrchestrator wires an orchestrator. Jobs, Hub and Ingestor are required.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	opts.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = contract.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobs:       deps.Jobs,
		hub:        deps.Hub,
		ingestor:   deps.Ingestor,
		classifier: deps.Classifier,
		results:    deps.Results,
		runs:       deps.Runs,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		sem:        make(chan struct{}, opts.MaxConcurrentAnalyses),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ValidateSubmission checks a submission and returns the repository identity.
func ValidateSubmission(repoURL string, months int) (string, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return "", &contract.ProtocolError{Field: "repo_url", Reason: "must not be empty"}
	}
	identity, err := schema.RepoIdentity(repoURL)
	if err != nil {
		return "", &contract.ProtocolError{Field: "repo_url", Reason: err.Error()}
	}
	if months < 1 || months > contract.MaxMonths {
		return "", &contract.ProtocolError{Field: "months", Reason: "must be between 1 and 24"}
	}
	return identity, nil
}

// Submit starts a pipeline for the repository and window, or attaches to the
// queued or running job with the same identity and window.
// The boolean reports whether a new job was created.
func (o *Orchestrator) Submit(_ context.Context, repoURL string, months int) (schema.Job, bool, error) {
	identity, err := ValidateSubmission(repoURL, months)
	if err != nil {
		telemetry.RecordSubmission("rejected")
		return schema.Job{}, false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		telemetry.RecordSubmission("rejected")
		return schema.Job{}, false, ErrShuttingDown
	}

	job, created := o.jobs.Create(strings.TrimSpace(repoURL), identity, months)
	if !created {
		telemetry.RecordSubmission("attached")
		o.logger.Info("Attached to in-flight job", "job_id", job.ID, "repo", identity, "months", months)
		return job, false, nil
	}
	telemetry.RecordSubmission("created")
	o.logger.Info("Job created", "job_id", job.ID, "repo", identity, "months", months)

	o.hub.Open(job.ID)
	o.wg.Add(1)
	go o.run(job)
	return job, true, nil
}

// run waits for a pipeline slot and executes the job.
func (o *Orchestrator) run(job schema.Job) {
	defer o.wg.Done()

	select {
	case o.sem <- struct{}{}:
	case <-o.ctx.Done():
		p := newPipeline(o, job)
		p.fail(0, errors.New("analysis cancelled before it started"))
		return
	}
	defer func() { <-o.sem }()

	telemetry.PipelineStarted()
	defer telemetry.PipelineStopped()

	newPipeline(o, job).execute(o.ctx)
}

// Status returns the polling view of a job.
func (o *Orchestrator) Status(id string) (schema.JobStatusView, error) {
	job, err := o.jobs.Get(id)
	if err != nil {
		return schema.JobStatusView{}, err
	}
	return job.View(), nil
}

// Job returns a copy of the job record.
func (o *Orchestrator) Job(id string) (schema.Job, error) {
	return o.jobs.Get(id)
}

// Result returns the final result of a complete job.
func (o *Orchestrator) Result(id string) (*schema.AnalysisResult, error) {
	job, err := o.jobs.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != schema.JobComplete || job.Result == nil {
		return nil, contract.ErrNotComplete
	}
	return job.Result, nil
}

// Subscribe attaches to the event stream of a job.
// The first event received describes the current state of the job.
func (o *Orchestrator) Subscribe(id string) (*stream.Subscription, error) {
	if _, err := o.jobs.Get(id); err != nil {
		return nil, err
	}
	return o.hub.Subscribe(id)
}

// Unsubscribe detaches a subscription.
func (o *Orchestrator) Unsubscribe(sub *stream.Subscription) {
	o.hub.Unsubscribe(sub)
}

// Wait blocks until the job is terminal or ctx is done and returns the job record.
func (o *Orchestrator) Wait(ctx context.Context, id string) (schema.Job, error) {
	sub, err := o.Subscribe(id)
	if err != nil {
		return schema.Job{}, err
	}
	defer o.Unsubscribe(sub)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return o.jobs.Get(id)
			}
		case <-ctx.Done():
			return schema.Job{}, ctx.Err()
		}
	}
}

// Cached returns the durable result of a repository identity.
func (o *Orchestrator) Cached(identity string) (*schema.CacheEntry, error) {
	if o.results == nil {
		return nil, contract.ErrNotFound
	}
	return o.results.Get(identity)
}

// ListCached returns the cached analyses, most recent first.
func (o *Orchestrator) ListCached() ([]schema.CachedSummary, error) {
	if o.results == nil {
		return []schema.CachedSummary{}, nil
	}
	return o.results.List()
}

// DeleteCached removes the durable result of a repository identity.
func (o *Orchestrator) DeleteCached(identity string) error {
	if o.results == nil {
		return contract.ErrNotFound
	}
	return o.results.Delete(identity)
}

// Shutdown stops accepting jobs and waits for running pipelines.
// When ctx expires first, pipelines are cancelled and ctx.Err() is returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

// RunJanitor evicts expired terminal jobs until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(o.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.EvictExpired()
		}
	}
}

// EvictExpired removes complete jobs older than the job TTL and failed jobs
// older than the error TTL, and closes their streams.
// Cached results are durable and outlive eviction.
func (o *Orchestrator) EvictExpired() []string {
	now := o.now()
	evicted := o.jobs.Evict(now.Add(-o.opts.JobTTL), now.Add(-o.opts.ErrorJobTTL))
	for _, id := range evicted {
		o.hub.Remove(id)
	}
	if len(evicted) > 0 {
		o.logger.Debug("Evicted expired jobs", "count", len(evicted))
	}
	return evicted
}
