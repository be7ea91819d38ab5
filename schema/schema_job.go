package schema

import (
	"strconv"
	"time"
)

// Job is the in-memory record of one pipeline run.
type Job struct {
	ID            string          `json:"job_id"`
	RepoURL       string          `json:"repo_url"`
	RepoIdentity  string          `json:"repo_identity"`
	MonthsWindow  int             `json:"months_window"`
	Status        JobStatus       `json:"status"`
	CurrentStage  int             `json:"stage"`
	StageProgress float64         `json:"progress"`
	LastMessage   string          `json:"message"`
	Result        *AnalysisResult `json:"-"` // Latest snapshot; final once complete
	ErrorMessage  string          `json:"error,omitempty"`
	Cached        bool            `json:"cached"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   time.Time       `json:"completed_at,omitzero"`
}

// JobKey is the single-flight key of a job.
func JobKey(identity string, months int) string {
	return identity + "@" + strconv.Itoa(months)
}

// JobStatusView is the polling view of a job.
type JobStatusView struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Stage        int       `json:"stage"`
	TotalStages  int       `json:"total_stages"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
	ErrorMessage string    `json:"error,omitempty"`
}

// View returns the polling view of the job.
func (j *Job) View() JobStatusView {
	return JobStatusView{
		JobID:        j.ID,
		Status:       j.Status,
		Stage:        j.CurrentStage,
		TotalStages:  TotalStages,
		Message:      j.LastMessage,
		Progress:     j.StageProgress,
		ErrorMessage: j.ErrorMessage,
	}
}

// Event is one message on a job's stream.
type Event struct {
	Type        EventType       `json:"type"`
	Stage       int             `json:"stage,omitempty"`
	TotalStages int             `json:"total_stages,omitempty"`
	Message     string          `json:"message,omitempty"`
	Progress    float64         `json:"progress"`
	Data        *AnalysisResult `json:"data,omitempty"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// CacheEntry is the durable document stored per repository identity.
// The embedded result carries the repository identity and window.
type CacheEntry struct {
	AnalysisResult
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// CachedSummary is one row of the cached-results listing.
type CachedSummary struct {
	RepoIdentity      string    `json:"repo_identity"`
	RepoURL           string    `json:"repo_url"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
	MonthsWindow      int       `json:"months_window"`
	TotalCommits      int       `json:"total_commits"`
	TotalContributors int       `json:"total_contributors"`
}

// Summary returns the listing row of the entry.
func (e *CacheEntry) Summary() CachedSummary {
	return CachedSummary{
		RepoIdentity:      e.RepoIdentity,
		RepoURL:           e.RepoURL,
		AnalyzedAt:        e.AnalyzedAt,
		MonthsWindow:      e.MonthsWindow,
		TotalCommits:      e.TotalCommits,
		TotalContributors: e.TotalContributors,
	}
}
