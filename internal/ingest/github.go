package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host and folds stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%s %s failed: %s", name, args[0], strings.TrimSpace(string(exitErr.Stderr)))
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w. Ensure it is installed and available on your PATH", name, err)
	}
	return out, nil
}

// GHClient implements contract.GitHubClient through the gh CLI.
type GHClient struct {
	run    Runner
	logger *slog.Logger
}

var _ contract.GitHubClient = &GHClient{} // Compile-time check

// NewGHClient creates a client. A nil runner executes gh on the host.
func NewGHClient(run Runner, logger *slog.Logger) *GHClient {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = contract.NewDiscardLogger()
	}
	return &GHClient{run: run, logger: logger}
}

// RepoSizeKB implements the GitHubClient interface.
func (c *GHClient) RepoSizeKB(ctx context.Context, slug string) (int, error) {
	out, err := c.run(ctx, "gh", "api", "repos/"+slug, "--jq", ".size")
	if err != nil {
		return 0, err
	}
	size, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected size %q: %w", strings.TrimSpace(string(out)), err)
	}
	return size, nil
}

const prQuery = `query($owner: String!, $name: String!, $limit: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: $limit, states: MERGED, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        number
        title
        author { __typename login }
        createdAt
        mergedAt
        additions
        deletions
        changedFiles
        body
        comments { totalCount }
        files(first: 50) { nodes { path } }
        commits(first: 1) { nodes { commit { author { email } } } }
        reviews(first: 20) {
          nodes {
            author { __typename login }
            state
            body
            comments(first: 30) { nodes { body } }
          }
        }
      }
    }
  }
}`

type gqlActor struct {
	Typename string `json:"__typename"`
	Login    string `json:"login"`
	IsBot    bool   `json:"is_bot"`
}

func (a *gqlActor) login() string {
	if a == nil || a.Login == "" {
		return "ghost"
	}
	return a.Login
}

func (a *gqlActor) bot() bool {
	return a != nil && (a.Typename == "Bot" || a.IsBot || strings.HasSuffix(a.Login, "[bot]"))
}

type gqlNodes[T any] struct {
	Nodes []T `json:"nodes"`
}

type gqlBody struct {
	Body string `json:"body"`
}

type gqlPath struct {
	Path string `json:"path"`
}

type gqlCommit struct {
	Commit struct {
		Author struct {
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
}

type gqlCount struct {
	TotalCount int `json:"totalCount"`
}

type gqlReview struct {
	Author   *gqlActor         `json:"author"`
	State    string            `json:"state"`
	Body     string            `json:"body"`
	Comments gqlNodes[gqlBody] `json:"comments"`
}

type gqlPullRequest struct {
	Number       int                 `json:"number"`
	Title        string              `json:"title"`
	Author       *gqlActor           `json:"author"`
	CreatedAt    time.Time           `json:"createdAt"`
	MergedAt     time.Time           `json:"mergedAt"`
	Additions    int                 `json:"additions"`
	Deletions    int                 `json:"deletions"`
	ChangedFiles int                 `json:"changedFiles"`
	Body         string              `json:"body"`
	Comments     gqlCount            `json:"comments"`
	Files        gqlNodes[gqlPath]   `json:"files"`
	Commits      gqlNodes[gqlCommit] `json:"commits"`
	Reviews      gqlNodes[gqlReview] `json:"reviews"`
}

type gqlResponse struct {
	Data struct {
		Repository *struct {
			PullRequests gqlNodes[gqlPullRequest] `json:"pullRequests"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PullRequests implements the GitHubClient interface.
// GraphQL is tried first; an authentication failure falls back to gh pr list.
// Only pull requests merged at or after since are returned.
func (c *GHClient) PullRequests(ctx context.Context, slug string, since time.Time, limit int) ([]schema.PullRequest, error) {
	owner, name, ok := strings.Cut(slug, "/")
	if !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrBadRepoIdentity, slug)
	}

	out, err := c.run(ctx, "gh", "api", "graphql",
		"-f", "query="+prQuery,
		"-F", "owner="+owner,
		"-F", "name="+name,
		"-F", "limit="+strconv.Itoa(limit))
	if err != nil {
		if !isAuthFailure(err) {
			return nil, fmt.Errorf("gh api graphql: %w", err)
		}
		c.logger.Warn("GraphQL pull request fetch was rejected, trying gh pr list", "repo", slug, "error", err)
		prs, ferr := c.listFallback(ctx, slug, limit)
		if ferr != nil {
			return nil, &contract.AuthError{Err: errors.Join(err, ferr)}
		}
		return sinceFilter(prs, since), nil
	}

	var resp gqlResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}
	if resp.Data.Repository == nil {
		return nil, fmt.Errorf("repository %s not found", slug)
	}

	prs := make([]schema.PullRequest, 0, len(resp.Data.Repository.PullRequests.Nodes))
	for _, n := range resp.Data.Repository.PullRequests.Nodes {
		pr := schema.PullRequest{
			Number:       n.Number,
			Title:        n.Title,
			Author:       n.Author.login(),
			IsBot:        n.Author.bot(),
			CreatedAt:    n.CreatedAt,
			MergedAt:     n.MergedAt,
			Additions:    n.Additions,
			Deletions:    n.Deletions,
			ChangedFiles: n.ChangedFiles,
			Body:         n.Body,
			Comments:     n.Comments.TotalCount,
			Files:        []string{},
			Reviews:      []schema.Review{},
		}
		if len(n.Commits.Nodes) > 0 {
			pr.AuthorEmail = n.Commits.Nodes[0].Commit.Author.Email
		}
		for _, f := range n.Files.Nodes {
			pr.Files = append(pr.Files, f.Path)
		}
		for _, r := range n.Reviews.Nodes {
			rv := schema.Review{Author: r.Author.login(), State: r.State, Body: r.Body, IsBot: r.Author.bot()}
			for _, cm := range r.Comments.Nodes {
				if strings.TrimSpace(cm.Body) != "" {
					rv.Comments = append(rv.Comments, cm.Body)
				}
			}
			pr.Reviews = append(pr.Reviews, rv)
		}
		prs = append(prs, pr)
	}
	return sinceFilter(prs, since), nil
}

type listReview struct {
	Author *gqlActor `json:"author"`
	State  string    `json:"state"`
	Body   string    `json:"body"`
}

type listPullRequest struct {
	Number       int          `json:"number"`
	Title        string       `json:"title"`
	Author       *gqlActor    `json:"author"`
	CreatedAt    time.Time    `json:"createdAt"`
	MergedAt     time.Time    `json:"mergedAt"`
	Additions    int          `json:"additions"`
	Deletions    int          `json:"deletions"`
	ChangedFiles int          `json:"changedFiles"`
	Body         string       `json:"body"`
	Comments     []gqlBody    `json:"comments"`
	Files        []gqlPath    `json:"files"`
	Reviews      []listReview `json:"reviews"`
}

// listFallback reads merged pull requests through the REST-backed gh pr list.
// Line-level review comments are not available there.
func (c *GHClient) listFallback(ctx context.Context, slug string, limit int) ([]schema.PullRequest, error) {
	out, err := c.run(ctx, "gh", "pr", "list",
		"--repo", slug,
		"--state", "merged",
		"--limit", strconv.Itoa(limit),
		"--json", "number,title,author,createdAt,mergedAt,additions,deletions,changedFiles,body,comments,files,reviews")
	if err != nil {
		return nil, err
	}
	var items []listPullRequest
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("decode gh pr list output: %w", err)
	}

	prs := make([]schema.PullRequest, 0, len(items))
	for _, it := range items {
		pr := schema.PullRequest{
			Number:       it.Number,
			Title:        it.Title,
			Author:       it.Author.login(),
			IsBot:        it.Author.bot(),
			CreatedAt:    it.CreatedAt,
			MergedAt:     it.MergedAt,
			Additions:    it.Additions,
			Deletions:    it.Deletions,
			ChangedFiles: it.ChangedFiles,
			Body:         it.Body,
			Comments:     len(it.Comments),
			Files:        []string{},
			Reviews:      []schema.Review{},
		}
		for _, f := range it.Files {
			pr.Files = append(pr.Files, f.Path)
		}
		for _, r := range it.Reviews {
			pr.Reviews = append(pr.Reviews, schema.Review{Author: r.Author.login(), State: r.State, Body: r.Body, IsBot: r.Author.bot()})
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth") || strings.Contains(msg, "login")
}

func sinceFilter(prs []schema.PullRequest, since time.Time) []schema.PullRequest {
	if since.IsZero() {
		return prs
	}
	out := prs[:0]
	for _, pr := range prs {
		if pr.MergedAt.IsZero() || !pr.MergedAt.Before(since) {
			out = append(out, pr)
		}
	}
	return out
}
