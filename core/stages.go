package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/huangsam/xray/core/algo"
	"github.com/huangsam/xray/internal/classifier"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/telemetry"
	"github.com/huangsam/xray/schema"
)

// errNoDiff skips a pull request whose commit could not be located.
var errNoDiff = errors.New("no matching commit")

// pipeline is the state of one job while its stages run.
// Only the pipeline goroutine and the serialized pool callbacks touch it.
type pipeline struct {
	o      *Orchestrator
	job    schema.Job
	log    *slog.Logger
	result *schema.AnalysisResult
	in     *schema.IngestionOutput
	runID  int64
	stage  int

	mu        sync.Mutex // Guards expertise and reviews while a pool runs
	expertise map[int]schema.ExpertiseClassification
	reviews   map[int][]schema.ReviewClassification
}

func newPipeline(o *Orchestrator, job schema.Job) *pipeline {
	return &pipeline{
		o:         o,
		job:       job,
		log:       o.logger.With("job_id", job.ID, "repo", job.RepoIdentity),
		result:    schema.NewAnalysisResult(job.RepoURL, job.RepoIdentity, job.MonthsWindow),
		expertise: make(map[int]schema.ExpertiseClassification),
		reviews:   make(map[int][]schema.ReviewClassification),
	}
}

// execute runs the five stages in order.
// Only stages 1 and 2 can fail the job; later failures degrade the result.
func (p *pipeline) execute(ctx context.Context) {
	start := p.o.now()
	p.beginRun(start)
	p.log.Info("Pipeline started", "months", p.job.MonthsWindow)

	if !p.timed(schema.StageIngestion, func() error { return p.ingest(ctx) }) {
		return
	}
	defer p.o.ingestor.Cleanup(p.in)

	if !p.timed(schema.StageStats, p.statistics) {
		return
	}

	switch {
	case p.o.classifier == nil:
		p.skipAI("AI classification is disabled")
	case p.in.PRError != nil:
		p.skipAI("Pull request data unavailable")
	default:
		p.timed(schema.StageCode, func() error { p.classifyCode(ctx); return nil })
		p.timed(schema.StageReview, func() error { p.classifyReviews(ctx); return nil })
	}
	if err := ctx.Err(); err != nil {
		p.fail(p.stage, fmt.Errorf("analysis interrupted: %w", err))
		return
	}

	p.timed(schema.StagePatterns, func() error { p.detectPatterns(ctx); return nil })
	p.finish(start)
}

// timed runs one stage, records its duration and reports whether the job may continue.
func (p *pipeline) timed(stage int, fn func() error) bool {
	p.stage = stage
	began := time.Now()
	err := fn()
	telemetry.RecordStageDuration(stage, time.Since(began).Seconds())
	if err != nil {
		p.fail(stage, err)
		return false
	}
	return true
}

// --- Stage 1 ---

func (p *pipeline) ingest(ctx context.Context) error {
	p.progress(schema.StageIngestion, "Starting repository ingestion...", 0)
	out, err := p.o.ingestor.Ingest(ctx, p.job.RepoURL, p.job.MonthsWindow, func(msg string, progress float64) {
		p.progress(schema.StageIngestion, msg, progress)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return &contract.IngestionError{Op: "collect", Err: errors.New("no data returned")}
	}
	p.in = out
	if out.PRError != nil {
		p.log.Warn("Continuing without pull request data", "error", out.PRError)
	}
	return nil
}

// --- Stage 2 ---

// statistics is pure computation. A panic here is a programming error and fails the job.
func (p *pipeline) statistics() (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Statistics stage panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("statistics computation failed: %v", r)
		}
	}()

	p.progress(schema.StageStats, "Computing contributor statistics...", 0)
	stats := ComputeStats(p.in)

	r := p.result
	r.TotalCommits = stats.TotalCommits
	r.TotalContributors = stats.TotalContributors
	r.TotalPRs = len(p.in.PullRequests)
	r.Contributors = stats.Contributors
	r.Modules = stats.Modules
	r.LoginToEmail = p.in.LoginToEmail
	r.PullRequestDataAvailable = p.in.PRError == nil

	p.progress(schema.StageStats, "Building knowledge graph...", 0.6)
	r.Graph = BuildGraph(r.Contributors, r.Modules, nil, r.LoginToEmail)
	p.recordModules()

	p.log.Info("Statistics computed", "modules", len(r.Modules), "contributors", r.TotalContributors)
	p.partial(schema.StageStats, fmt.Sprintf("Found %d modules and %d contributors", len(r.Modules), r.TotalContributors), 1)
	return nil
}

// skipAI reports stages 3 and 4 as skipped.
func (p *pipeline) skipAI(reason string) {
	p.log.Info("Skipping AI classification", "reason", reason)
	p.stage = schema.StageReview
	p.progress(schema.StageCode, reason+", skipping code analysis", 1)
	p.progress(schema.StageReview, reason+", skipping review analysis", 1)
}

// --- Stage 3 ---

func (p *pipeline) classifyCode(ctx context.Context) {
	candidates := algo.RankPullRequests(p.in.PullRequests, p.o.opts.MaxPRsCode)
	n := len(candidates)
	if n == 0 {
		p.partial(schema.StageCode, "No pull requests to analyze", 1)
		return
	}
	width := p.o.opts.PoolWidth
	p.progress(schema.StageCode, fmt.Sprintf("Analyzing %d pull requests...", n), 0)

	err := classifier.RunBounded(ctx, width, candidates,
		func(ctx context.Context, pr schema.PullRequest) error {
			diff, err := p.o.ingestor.Diff(ctx, p.in, pr)
			if err != nil {
				return err
			}
			if diff == "" {
				return errNoDiff
			}
			c, err := p.o.classifier.ClassifyCode(ctx, pr, diff)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.expertise[pr.Number] = *c
			p.mu.Unlock()
			return nil
		},
		func(done int, pr schema.PullRequest, err error) {
			if err != nil {
				p.skip("code", pr.Number, err)
			}
			msg := fmt.Sprintf("Analyzing %d of %d pull requests...", done, n)
			if done%width == 0 || done == n {
				p.mergeExpertise()
				p.partial(schema.StageCode, msg, float64(done)/float64(n))
				return
			}
			p.progress(schema.StageCode, msg, float64(done)/float64(n))
		})
	if err != nil {
		p.log.Warn("Code analysis interrupted", "error", err)
	}
	p.mergeExpertise()
	p.partial(schema.StageCode, fmt.Sprintf("Classified %d of %d pull requests", len(p.result.ExpertiseClassifications), n), 1)
}

// mergeExpertise publishes the collected classifications into the result and re-derives edge depths.
func (p *pipeline) mergeExpertise() {
	p.mu.Lock()
	list := make([]schema.ExpertiseClassification, 0, len(p.expertise))
	for _, c := range p.expertise {
		list = append(list, c)
	}
	p.mu.Unlock()

	slices.SortFunc(list, func(a, b schema.ExpertiseClassification) int {
		return cmp.Compare(a.PRNumber, b.PRNumber)
	})
	p.result.ExpertiseClassifications = list
	p.result.Graph = BuildGraph(p.result.Contributors, p.result.Modules, list, p.result.LoginToEmail)
}

// --- Stage 4 ---

func (p *pipeline) classifyReviews(ctx context.Context) {
	candidates := algo.ReviewCandidates(p.in.PullRequests, p.o.opts.MaxPRsReview)
	n := len(candidates)
	if n == 0 {
		p.partial(schema.StageReview, "No reviewed pull requests to analyze", 1)
		return
	}
	width := p.o.opts.PoolWidth
	p.progress(schema.StageReview, fmt.Sprintf("Analyzing reviews on %d pull requests...", n), 0)

	err := classifier.RunBounded(ctx, width, candidates,
		func(ctx context.Context, pr schema.PullRequest) error {
			rs, err := p.o.classifier.ClassifyReview(ctx, pr)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.reviews[pr.Number] = rs
			p.mu.Unlock()
			return nil
		},
		func(done int, pr schema.PullRequest, err error) {
			if err != nil {
				p.skip("review", pr.Number, err)
			}
			msg := fmt.Sprintf("Analyzing %d of %d reviewed pull requests...", done, n)
			if done%width == 0 || done == n {
				p.mergeReviews()
				p.partial(schema.StageReview, msg, float64(done)/float64(n))
				return
			}
			p.progress(schema.StageReview, msg, float64(done)/float64(n))
		})
	if err != nil {
		p.log.Warn("Review analysis interrupted", "error", err)
	}
	p.mergeReviews()
	p.partial(schema.StageReview, fmt.Sprintf("Classified %d reviews", len(p.result.ReviewClassifications)), 1)
}

func (p *pipeline) mergeReviews() {
	p.mu.Lock()
	list := make([]schema.ReviewClassification, 0, len(p.reviews))
	for _, rs := range p.reviews {
		list = append(list, rs...)
	}
	p.mu.Unlock()

	slices.SortFunc(list, func(a, b schema.ReviewClassification) int {
		return cmp.Or(cmp.Compare(a.PRNumber, b.PRNumber), cmp.Compare(a.Reviewer, b.Reviewer))
	})
	p.result.ReviewClassifications = list
}

// skip records a per-item classification failure.
func (p *pipeline) skip(capability string, prNumber int, err error) {
	p.result.SkippedClassifications++
	if errors.Is(err, errNoDiff) {
		p.log.Debug("Pull request skipped", "capability", capability, "pr", prNumber, "reason", err)
		return
	}
	p.log.Warn("Classification skipped", "capability", capability, "pr", prNumber, "error", err)
}

// --- Stage 5 ---

// detectPatterns never fails the job: a failed call leaves an empty pattern result.
func (p *pipeline) detectPatterns(ctx context.Context) {
	if p.o.classifier == nil {
		p.result.PatternResult = schema.EmptyPatternResult()
		p.progress(schema.StagePatterns, "AI classification is disabled, skipping pattern detection", 1)
		return
	}
	p.progress(schema.StagePatterns, "Detecting team patterns...", 0)
	patterns, err := p.o.classifier.DetectPatterns(ctx, p.result.Snapshot())
	if err != nil || patterns == nil {
		p.log.Warn("Pattern detection failed, continuing with an empty result", "error", err)
		patterns = schema.EmptyPatternResult()
	}
	p.result.PatternResult = patterns
	p.progress(schema.StagePatterns, "Pattern detection complete", 1)
}

// --- Events and state ---

// progress updates the job and publishes a progress event.
func (p *pipeline) progress(stage int, msg string, progress float64) {
	p.update(func(j *schema.Job) {
		j.Status = schema.JobRunning
		j.CurrentStage = max(j.CurrentStage, stage)
		j.StageProgress = progress
		j.LastMessage = msg
	})
	p.o.hub.Publish(p.job.ID, schema.Event{
		Type:        schema.EventProgress,
		Stage:       stage,
		TotalStages: schema.TotalStages,
		Message:     msg,
		Progress:    progress,
	})
}

// partial stores a snapshot on the job and publishes it.
func (p *pipeline) partial(stage int, msg string, progress float64) {
	snap := p.result.Snapshot()
	p.update(func(j *schema.Job) {
		j.Status = schema.JobRunning
		j.CurrentStage = max(j.CurrentStage, stage)
		j.StageProgress = progress
		j.LastMessage = msg
		j.Result = snap
	})
	p.o.hub.Publish(p.job.ID, schema.Event{
		Type:        schema.EventPartialResult,
		Stage:       stage,
		TotalStages: schema.TotalStages,
		Message:     msg,
		Progress:    progress,
		Data:        snap,
	})
}

// finish persists the result before the complete event is published.
func (p *pipeline) finish(start time.Time) {
	final := p.result.Snapshot()
	cached := p.persist(final)
	p.update(func(j *schema.Job) {
		j.Status = schema.JobComplete
		j.CurrentStage = schema.StagePatterns
		j.StageProgress = 1
		j.LastMessage = "Analysis complete"
		j.Result = final
		j.Cached = cached
	})
	p.endRun(schema.JobComplete, "")
	telemetry.RecordJobFinished(string(schema.JobComplete))
	p.log.Info("Pipeline complete",
		"duration", p.o.now().Sub(start).Round(time.Millisecond),
		"expertise", len(final.ExpertiseClassifications),
		"reviews", len(final.ReviewClassifications),
		"skipped", final.SkippedClassifications)
	// Waiters return on the terminal event; the clock is not read after it.
	p.o.hub.Publish(p.job.ID, schema.Event{
		Type:        schema.EventComplete,
		Stage:       schema.StagePatterns,
		TotalStages: schema.TotalStages,
		Message:     "Analysis complete",
		Progress:    1,
		Data:        final,
	})
}

// fail moves the job to error and publishes the message verbatim.
func (p *pipeline) fail(stage int, err error) {
	msg := err.Error()
	p.log.Error("Pipeline failed", "stage", stage, "error", err)
	p.update(func(j *schema.Job) {
		j.Status = schema.JobError
		j.ErrorMessage = msg
		j.LastMessage = msg
	})
	p.endRun(schema.JobError, msg)
	telemetry.RecordJobFinished(string(schema.JobError))
	p.o.hub.Publish(p.job.ID, schema.Event{
		Type:        schema.EventError,
		Stage:       stage,
		TotalStages: schema.TotalStages,
		Message:     msg,
	})
}

func (p *pipeline) update(fn func(j *schema.Job)) {
	if _, err := p.o.jobs.Update(p.job.ID, fn); err != nil {
		p.log.Debug("Job update rejected", "error", err)
	}
}

// persist writes the durable cache entry. Failures are logged and never surfaced.
func (p *pipeline) persist(final *schema.AnalysisResult) bool {
	if p.o.results == nil {
		return false
	}
	entry := &schema.CacheEntry{AnalysisResult: *final, AnalyzedAt: p.o.now().UTC()}
	if err := p.o.results.Put(entry); err != nil {
		cerr := &contract.CacheError{Op: "put", Key: final.RepoIdentity, Err: err}
		p.log.Warn("Failed to cache result", "error", cerr)
		return false
	}
	return true
}

// --- Run tracking ---

func (p *pipeline) beginRun(start time.Time) {
	if p.o.runs == nil {
		return
	}
	id, err := p.o.runs.BeginRun(p.job.ID, p.job.RepoIdentity, p.job.MonthsWindow, start)
	if err != nil {
		p.log.Warn("Run tracking initialization failed", "error", err)
		return
	}
	p.runID = id
}

func (p *pipeline) recordModules() {
	if p.o.runs == nil || p.runID <= 0 {
		return
	}
	at := p.o.now()
	for _, m := range p.result.Modules {
		if err := p.o.runs.RecordModule(p.runID, at, m); err != nil {
			p.log.Warn("Failed to record module snapshot", "module", m.Path, "error", err)
			return
		}
	}
}

func (p *pipeline) endRun(status schema.JobStatus, errMsg string) {
	if p.o.runs == nil || p.runID <= 0 {
		return
	}
	outcome := schema.RunOutcome{
		EndTime:      p.o.now(),
		Status:       status,
		StageReached: p.stage,
		TotalModules: len(p.result.Modules),
		ErrorMessage: errMsg,
	}
	if err := p.o.runs.EndRun(p.runID, outcome); err != nil {
		p.log.Warn("Failed to finalize run tracking", "error", err)
	}
}
