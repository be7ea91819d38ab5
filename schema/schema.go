// Package schema has the models and enums shared by every part of xray.
package schema

import (
	"slices"
	"time"
)

// ContributorModuleStats is one contributor's activity inside a module.
type ContributorModuleStats struct {
	Commits    int `json:"commits"`
	Additions  int `json:"additions"`
	Deletions  int `json:"deletions"`
	BlameLines int `json:"blame_lines"`
}

// Contributor aggregates one identity's activity over the analysis window.
type Contributor struct {
	Identity       string    `json:"identity"`          // Resolved email (stable key)
	DisplayName    string    `json:"display_name"`
	IsBot          bool      `json:"is_bot"`
	TotalCommits   int       `json:"total_commits"`
	TotalAdditions int       `json:"total_additions"`
	TotalDeletions int       `json:"total_deletions"`
	ActiveModules  []string  `json:"active_modules"`    // Sorted set
	FirstActivity  time.Time `json:"first_activity_at"`
	LastActivity   time.Time `json:"last_activity_at"`
}

// Module is a logical directory (top two path segments) with its ownership profile.
type Module struct {
	Path                string                            `json:"path"`
	PerContributorStats map[string]ContributorModuleStats `json:"per_contributor_stats"`
	TotalCommits        int                               `json:"total_commits"`
	TotalLines          int                               `json:"total_lines"`
	OwnershipShares     map[string]float64                `json:"ownership_shares"`
	OwnershipSource     string                            `json:"ownership_source"`      // "blame" or "commits"
	BusFactor           float64                           `json:"bus_factor"`
	RiskLevel           RiskLevel                         `json:"risk_level"`
	BotCommits          map[string]int                    `json:"bot_commits,omitempty"` // Excluded from shares
}

// Ownership source labels.
const (
	OwnershipBlame   = "blame"
	OwnershipCommits = "commits"
)

// ExpertiseClassification is the classifier's verdict on one pull request.
type ExpertiseClassification struct {
	PRNumber       int            `json:"pr_number"`
	Author         string         `json:"author"`
	ChangeType     ChangeType     `json:"change_type"`
	Complexity     Complexity     `json:"complexity"`
	KnowledgeDepth KnowledgeDepth `json:"knowledge_depth"`
	Signals        []string       `json:"expertise_signals"`
	ModulesTouched []string       `json:"modules_touched"`
	Summary        string         `json:"summary"`
	MergedAt       time.Time      `json:"merged_at,omitzero"`
}

// ReviewClassification is the classifier's verdict on one review of a pull request.
type ReviewClassification struct {
	PRNumber          int           `json:"pr_number"`
	Reviewer          string        `json:"reviewer"`
	Quality           ReviewQuality `json:"quality"`
	Signals           []string      `json:"signals"`
	KnowledgeTransfer bool          `json:"knowledge_transfer"`
	Summary           string        `json:"summary"`
}

// Insight is one finding of pattern detection.
type Insight struct {
	Category       InsightCategory `json:"category"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Severity       Severity        `json:"severity"`
	RelatedPeople  []string        `json:"related_people"`
	RelatedModules []string        `json:"related_modules"`
}

// PatternResult is the output of the final reasoning stage.
type PatternResult struct {
	ExecutiveSummary string    `json:"executive_summary"`
	Insights         []Insight `json:"insights"`
	Recommendations  []string  `json:"recommendations"`
}

// EmptyPatternResult returns a present-but-empty result with non-nil slices.
func EmptyPatternResult() *PatternResult {
	return &PatternResult{Insights: []Insight{}, Recommendations: []string{}}
}

// GraphNode is a contributor, bot or module in the knowledge graph.
type GraphNode struct {
	ID             string             `json:"id"`
	Kind           NodeKind           `json:"kind"`
	Label          string             `json:"label"`
	Size           float64            `json:"size"`
	RiskOrDepth    string             `json:"risk_or_depth,omitempty"`
	ExpertiseAreas []string           `json:"expertise_areas,omitempty"`
	Metrics        map[string]float64 `json:"related_metrics,omitempty"`
}

// GraphEdge links a contributor node to a module node.
type GraphEdge struct {
	Source         string         `json:"source"`
	Target         string         `json:"target"`
	Weight         float64        `json:"weight"`
	CommitCount    int            `json:"commit_count"`
	ExpertiseDepth KnowledgeDepth `json:"expertise_depth"`
}

// Graph is the node/edge projection of the statistics.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// AnalysisResult is the aggregate that is streamed and cached.
type AnalysisResult struct {
	RepoURL                  string                    `json:"repo_url"`
	RepoIdentity             string                    `json:"repo_identity"`
	MonthsWindow             int                       `json:"months_window"`
	TotalCommits             int                       `json:"total_commits"`
	TotalContributors        int                       `json:"total_contributors"`
	TotalPRs                 int                       `json:"total_prs"`
	Contributors             []Contributor             `json:"contributors"`
	Modules                  []Module                  `json:"modules"`
	Graph                    Graph                     `json:"graph"`
	ExpertiseClassifications []ExpertiseClassification `json:"expertise_classifications"`
	ReviewClassifications    []ReviewClassification    `json:"review_classifications"`
	PatternResult            *PatternResult            `json:"pattern_result"`              // nil until stage 5 finishes
	LoginToEmail             map[string]string         `json:"login_to_email,omitempty"`
	SkippedClassifications   int                       `json:"skipped_classifications"`
	PullRequestDataAvailable bool                      `json:"pull_request_data_available"`
}

// NewAnalysisResult creates an empty result with non-nil collections.
func NewAnalysisResult(repoURL, identity string, months int) *AnalysisResult {
	return &AnalysisResult{
		RepoURL:                  repoURL,
		RepoIdentity:             identity,
		MonthsWindow:             months,
		Contributors:             []Contributor{},
		Modules:                  []Module{},
		Graph:                    Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}},
		ExpertiseClassifications: []ExpertiseClassification{},
		ReviewClassifications:    []ReviewClassification{},
	}
}

// Snapshot returns a copy that later stages cannot mutate.
// Contributors and modules are immutable after the statistics stage and are shared.
func (r *AnalysisResult) Snapshot() *AnalysisResult {
	cp := *r
	cp.Graph = Graph{
		Nodes: slices.Clone(r.Graph.Nodes),
		Edges: slices.Clone(r.Graph.Edges),
	}
	cp.ExpertiseClassifications = slices.Clone(r.ExpertiseClassifications)
	cp.ReviewClassifications = slices.Clone(r.ReviewClassifications)
	if r.PatternResult != nil {
		pr := *r.PatternResult
		cp.PatternResult = &pr
	}
	return &cp
}
