package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/telemetry"
	"github.com/huangsam/xray/schema"
)

// Capability labels used in logs and metrics.
const (
	CapabilityCode     = "code"
	CapabilityReview   = "review"
	CapabilityPatterns = "patterns"
)

const (
	itemMaxTokens     = 1024
	patternsMaxTokens = 16000

	// Pattern detection reasons over the whole result and gets a longer deadline.
	patternsTimeoutFactor = 3
)

var validate = validator.New()

type codeWire struct {
	ChangeType     string   `json:"change_type" validate:"required,oneof=feature bugfix refactor test docs config dependency performance"`
	Complexity     string   `json:"complexity" validate:"required,oneof=trivial moderate complex highly_complex"`
	KnowledgeDepth string   `json:"knowledge_depth" validate:"required,oneof=surface working deep architect"`
	Signals        []string `json:"expertise_signals"`
	ModulesTouched []string `json:"modules_touched"`
	Summary        string   `json:"summary" validate:"required"`
}

type reviewWire struct {
	Reviewer          string   `json:"reviewer" validate:"required"`
	Quality           string   `json:"quality" validate:"required,oneof=rubber_stamp surface thorough mentoring"`
	Signals           []string `json:"signals"`
	KnowledgeTransfer bool     `json:"knowledge_transfer"`
	Summary           string   `json:"summary"`
}

type insightWire struct {
	Category    string   `json:"category" validate:"required,oneof=risk opportunity pattern recommendation"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Severity    string   `json:"severity" validate:"required,oneof=low medium high critical"`
	People      []string `json:"people"`
	Modules     []string `json:"modules"`
}

type patternWire struct {
	ExecutiveSummary string        `json:"executive_summary" validate:"required"`
	Insights         []insightWire `json:"insights" validate:"dive"`
	Recommendations  []string      `json:"recommendations"`
}

// Adapter implements contract.Classifier on top of a Provider.
// Every response is decoded strictly and validated; failures are returned, never defaulted.
type Adapter struct {
	provider       Provider
	model          string
	timeout        time.Duration
	thinkingBudget int
	logger         *slog.Logger
}

// NewAdapter creates an adapter with the configured model, timeout and thinking budget.
func NewAdapter(provider Provider, cfg *contract.Config, logger *slog.Logger) *Adapter {
	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = contract.DefaultAITimeout
	}
	if logger == nil {
		logger = contract.NewDiscardLogger()
	}
	return &Adapter{
		provider:       provider,
		model:          cfg.AIModel,
		timeout:        timeout,
		thinkingBudget: cfg.PatternThinkingBudget,
		logger:         logger,
	}
}

// NewClassifier builds the configured classifier, or nil when the provider is none.
func NewClassifier(cfg *contract.Config, logger *slog.Logger) (contract.Classifier, error) {
	p, err := NewProvider(cfg)
	if err != nil || p == nil {
		return nil, err
	}
	return NewAdapter(p, cfg, logger), nil
}

// ClassifyCode classifies the expertise shown by one pull request's diff.
func (a *Adapter) ClassifyCode(ctx context.Context, pr schema.PullRequest, diff string) (*schema.ExpertiseClassification, error) {
	item := "PR #" + strconv.Itoa(pr.Number)
	text, err := a.complete(ctx, CapabilityCode, item, CompletionRequest{
		System:    codeSystemPrompt,
		Messages:  []Message{{Role: RoleUser, Content: codeMessage(pr, diff)}},
		MaxTokens: itemMaxTokens,
		JSONMode:  true,
	}, a.timeout)
	if err != nil {
		return nil, err
	}

	var w codeWire
	if err := decodeStrict(text, &w); err != nil {
		return nil, a.fail(CapabilityCode, contract.ClassifierDecode, item, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, a.fail(CapabilityCode, contract.ClassifierInvalid, item, err)
	}

	modules := w.ModulesTouched
	if len(modules) == 0 {
		modules = modulesOf(pr.Files)
	}
	mergedAt := pr.MergedAt
	if mergedAt.IsZero() {
		mergedAt = pr.CreatedAt
	}
	telemetry.RecordClassifierCall(CapabilityCode, "ok")
	return &schema.ExpertiseClassification{
		PRNumber:       pr.Number,
		Author:         pr.Author,
		ChangeType:     schema.ChangeType(w.ChangeType),
		Complexity:     schema.Complexity(w.Complexity),
		KnowledgeDepth: schema.KnowledgeDepth(w.KnowledgeDepth),
		Signals:        nonNil(w.Signals),
		ModulesTouched: modules,
		Summary:        w.Summary,
		MergedAt:       mergedAt,
	}, nil
}

// ClassifyReview classifies every human review of one pull request.
// A pull request without human reviews yields an empty slice and no call.
func (a *Adapter) ClassifyReview(ctx context.Context, pr schema.PullRequest) ([]schema.ReviewClassification, error) {
	if !hasHumanReview(pr) {
		return []schema.ReviewClassification{}, nil
	}
	item := "PR #" + strconv.Itoa(pr.Number)
	text, err := a.complete(ctx, CapabilityReview, item, CompletionRequest{
		System:    reviewSystemPrompt,
		Messages:  []Message{{Role: RoleUser, Content: reviewMessage(pr)}},
		MaxTokens: itemMaxTokens,
	}, a.timeout)
	if err != nil {
		return nil, err
	}

	var items []reviewWire
	if strings.HasPrefix(text, "{") {
		var one reviewWire
		err = decodeStrict(text, &one)
		items = []reviewWire{one}
	} else {
		err = decodeStrict(text, &items)
	}
	if err != nil {
		return nil, a.fail(CapabilityReview, contract.ClassifierDecode, item, err)
	}

	out := make([]schema.ReviewClassification, 0, len(items))
	for _, w := range items {
		if err := validate.Struct(w); err != nil {
			return nil, a.fail(CapabilityReview, contract.ClassifierInvalid, item, err)
		}
		out = append(out, schema.ReviewClassification{
			PRNumber:          pr.Number,
			Reviewer:          w.Reviewer,
			Quality:           schema.ReviewQuality(w.Quality),
			Signals:           nonNil(w.Signals),
			KnowledgeTransfer: w.KnowledgeTransfer,
			Summary:           w.Summary,
		})
	}
	telemetry.RecordClassifierCall(CapabilityReview, "ok")
	return out, nil
}

// DetectPatterns reasons over the aggregate result with extended thinking.
func (a *Adapter) DetectPatterns(ctx context.Context, result *schema.AnalysisResult) (*schema.PatternResult, error) {
	item := result.RepoIdentity
	text, err := a.complete(ctx, CapabilityPatterns, item, CompletionRequest{
		System:         patternSystemPrompt,
		Messages:       []Message{{Role: RoleUser, Content: patternMessage(result)}},
		MaxTokens:      patternsMaxTokens,
		JSONMode:       true,
		ThinkingBudget: a.thinkingBudget,
	}, a.timeout*patternsTimeoutFactor)
	if err != nil {
		return nil, err
	}

	var w patternWire
	if err := decodeStrict(text, &w); err != nil {
		return nil, a.fail(CapabilityPatterns, contract.ClassifierDecode, item, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, a.fail(CapabilityPatterns, contract.ClassifierInvalid, item, err)
	}

	out := schema.EmptyPatternResult()
	out.ExecutiveSummary = w.ExecutiveSummary
	out.Recommendations = nonNil(w.Recommendations)
	for _, in := range w.Insights {
		out.Insights = append(out.Insights, schema.Insight{
			Category:       schema.InsightCategory(in.Category),
			Title:          in.Title,
			Description:    in.Description,
			Severity:       schema.Severity(in.Severity),
			RelatedPeople:  nonNil(in.People),
			RelatedModules: nonNil(in.Modules),
		})
	}
	telemetry.RecordClassifierCall(CapabilityPatterns, "ok")
	return out, nil
}

// complete sends one request under its own deadline and returns the unfenced response text.
func (a *Adapter) complete(ctx context.Context, capability, item string, req CompletionRequest, timeout time.Duration) (string, error) {
	req.Model = a.model
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.provider.Complete(callCtx, req)
	if err != nil {
		kind := contract.ClassifierTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = contract.ClassifierTimeout
		}
		return "", a.fail(capability, kind, item, err)
	}
	a.logger.Debug("Classifier call finished",
		"capability", capability, "item", item, "provider", a.provider.Name(),
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start))
	return stripFences(resp.Content), nil
}

func (a *Adapter) fail(capability, kind, item string, err error) error {
	telemetry.RecordClassifierCall(capability, kind)
	a.logger.Warn("Classifier call failed", "capability", capability, "kind", kind, "item", item, "error", err)
	return &contract.ClassifierError{Kind: kind, Item: item, Err: err}
}

// stripFences returns the body of the first markdown code fence, or the trimmed text.
func stripFences(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(text string, v any) error {
	if text == "" {
		return errors.New("empty response")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func hasHumanReview(pr schema.PullRequest) bool {
	for _, r := range pr.Reviews {
		if !r.IsBot {
			return true
		}
	}
	return false
}

// modulesOf returns the distinct modules of the files in first-seen order.
func modulesOf(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := []string{}
	for _, f := range files {
		m := schema.FileToModule(f)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
