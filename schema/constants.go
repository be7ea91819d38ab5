package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the CLI output.
	OutputMode string

	// DatabaseBackend represents the backend for durable storage.
	DatabaseBackend string

	// JobStatus represents the lifecycle state of an analysis job.
	JobStatus string

	// RiskLevel is the label derived from a module bus factor.
	RiskLevel string

	// KnowledgeDepth is the expertise tier of a contribution.
	KnowledgeDepth string

	// ReviewQuality is the substance tier of a code review.
	ReviewQuality string

	// NodeKind is the type of a knowledge-graph node.
	NodeKind string

	// EventType is the kind of a streamed job event.
	EventType string

	// ChangeType is the kind of change made by a pull request.
	ChangeType string

	// Complexity is the difficulty of a pull request change.
	Complexity string

	// InsightCategory classifies a pattern-detection insight.
	InsightCategory string

	// Severity ranks a pattern-detection insight.
	Severity string

	// ProviderKind names a classification provider.
	ProviderKind string
)

// TotalStages is the fixed number of pipeline stages.
const TotalStages = 5

// Pipeline stages in execution order.
const (
	StageIngestion = 1
	StageStats     = 2
	StageCode      = 3
	StageReview    = 4
	StagePatterns  = 5
)

// All output modes supported.
const (
	TextOut OutputMode = "text" // default
	JSONOut OutputMode = "json"
)

// All storage backends supported.
const (
	FileBackend       DatabaseBackend = "file" // default for results
	SQLiteBackend     DatabaseBackend = "sqlite"
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All job states. Terminal states are absorbing.
const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobError    JobStatus = "error"
)

// Risk levels from most to least severe.
const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskModerate RiskLevel = "moderate"
	RiskLow      RiskLevel = "low"
)

// Knowledge depths from shallow to deep.
const (
	DepthSurface   KnowledgeDepth = "surface"
	DepthWorking   KnowledgeDepth = "working" // default
	DepthDeep      KnowledgeDepth = "deep"
	DepthArchitect KnowledgeDepth = "architect"
)

// Review quality tiers.
const (
	QualityRubberStamp ReviewQuality = "rubber_stamp"
	QualitySurface     ReviewQuality = "surface"
	QualityThorough    ReviewQuality = "thorough"
	QualityMentoring   ReviewQuality = "mentoring"
)

// Insight severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Graph node kinds.
const (
	NodeContributor NodeKind = "contributor"
	NodeModule      NodeKind = "module"
	NodeBot         NodeKind = "bot"
)

// Stream event types.
const (
	EventProgress      EventType = "progress"
	EventPartialResult EventType = "partial_result"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventPing          EventType = "ping"
)

// Classification providers.
const (
	AnthropicProvider ProviderKind = "anthropic" // default
	OpenAIProvider    ProviderKind = "openai"
	NoProvider        ProviderKind = "none"
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut: {},
	JSONOut: {},
}

// ValidResultBackends lists the backends usable for the result cache.
var ValidResultBackends = map[DatabaseBackend]struct{}{
	FileBackend:       {},
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidDatabaseBackends lists the SQL backends usable for run tracking.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidProviders lists all classification providers.
var ValidProviders = map[ProviderKind]struct{}{
	AnthropicProvider: {},
	OpenAIProvider:    {},
	NoProvider:        {},
}

// depthRanks orders knowledge depths.
var depthRanks = map[KnowledgeDepth]int{
	DepthSurface:   0,
	DepthWorking:   1,
	DepthDeep:      2,
	DepthArchitect: 3,
}

// DepthRank returns the ordinal of a depth. Unknown depths rank as working.
func DepthRank(d KnowledgeDepth) int {
	if r, ok := depthRanks[d]; ok {
		return r
	}
	return depthRanks[DepthWorking]
}

// statusRanks orders job states for monotonic transitions.
var statusRanks = map[JobStatus]int{
	JobQueued:   0,
	JobRunning:  1,
	JobComplete: 2,
	JobError:    2,
}

// StatusRank returns the ordinal of a job status.
func StatusRank(s JobStatus) int {
	return statusRanks[s]
}

// IsTerminal reports whether the status is complete or error.
func (s JobStatus) IsTerminal() bool {
	return s == JobComplete || s == JobError
}
