package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

const truncatedMarker = "\n... [truncated]"

// Diff implements the Ingestor interface.
// The commit is the newest one whose message references #N, else the newest by the PR author.
// An empty diff with no error means no commit could be matched.
func (s *Service) Diff(ctx context.Context, out *schema.IngestionOutput, pr schema.PullRequest) (string, error) {
	hash := findPRCommit(out.Commits, pr)
	if hash == "" {
		// The merge may predate the window; search the whole history.
		found, err := s.git.FindCommit(ctx, out.RepoPath, "-E", fmt.Sprintf("--grep=#%d([^0-9]|$)", pr.Number))
		if err != nil {
			return "", err
		}
		hash = found
	}
	if hash == "" {
		return "", nil
	}
	raw, err := s.git.ShowCommit(ctx, out.RepoPath, hash)
	if err != nil {
		return "", err
	}
	limit := s.opts.DiffTruncateChars
	if limit <= 0 {
		limit = contract.DefaultDiffTruncateChars
	}
	return truncateDiff(string(raw), limit), nil
}

// findPRCommit scans the parsed history, which is ordered newest first.
func findPRCommit(commits []schema.Commit, pr schema.PullRequest) string {
	ref := regexp.MustCompile(fmt.Sprintf(`#%d\b`, pr.Number))
	for _, c := range commits {
		if ref.MatchString(c.Message) {
			return c.Hash
		}
	}

	author := strings.ToLower(pr.Author)
	if author == "" || author == "ghost" {
		return ""
	}
	email := strings.ToLower(pr.AuthorEmail)
	for _, c := range commits {
		switch {
		case strings.EqualFold(c.AuthorName, author),
			email != "" && strings.EqualFold(c.AuthorEmail, email),
			strings.HasPrefix(strings.ToLower(c.AuthorEmail), author):
			return c.Hash
		}
	}
	return ""
}

// truncateDiff caps a diff at limit characters and appends a marker when cut.
func truncateDiff(diff string, limit int) string {
	r := []rune(diff)
	if len(r) <= limit {
		return diff
	}
	return string(r[:limit]) + truncatedMarker
}
