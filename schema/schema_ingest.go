package schema

import "time"

// FileChange is one numstat row of a commit.
type FileChange struct {
	Path      string
	Additions int
	Deletions int
}

// Commit is one parsed entry of the history log.
type Commit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	Date        time.Time
	Message     string
	Files       []FileChange
}

// BlameEntry is the number of surviving lines attributed to one author.
type BlameEntry struct {
	AuthorName  string
	AuthorEmail string
	Lines       int
}

// BlameFile is the aggregated blame of a single file.
type BlameFile struct {
	Path       string
	Entries    []BlameEntry
	TotalLines int
}

// Review is one review left on a pull request.
type Review struct {
	Author   string   `json:"author"`
	State    string   `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, ...
	Body     string   `json:"body"`
	Comments []string `json:"comments,omitempty"` // Line-level comments
	IsBot    bool     `json:"is_bot,omitempty"`
}

// PullRequest is the metadata of a merged pull request.
type PullRequest struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	AuthorEmail  string    `json:"author_email,omitempty"`
	IsBot        bool      `json:"is_bot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MergedAt     time.Time `json:"merged_at"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	ChangedFiles int       `json:"changed_files"`
	Body         string    `json:"body"`
	Comments     int       `json:"comments"`
	Files        []string  `json:"files"`
	Reviews      []Review  `json:"reviews"`
}

// IngestionOutput is everything the first stage hands to the rest of the pipeline.
type IngestionOutput struct {
	RepoURL        string
	RepoIdentity   string
	RepoPath       string // Local clone
	Commits        []Commit
	Blame          []BlameFile
	BlameAvailable bool
	PullRequests   []PullRequest
	PRError        error             // Set when pull request data could not be fetched
	LoginToEmail   map[string]string // GitHub login -> git email
	BotEmails      map[string]struct{}
}
