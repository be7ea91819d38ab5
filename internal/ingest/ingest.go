// Package ingest collects the history, blame and pull request data of a repository.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/huangsam/xray/core/agg"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"golang.org/x/sync/errgroup"
)

const (
	// prFetchLimit is the number of most recently updated merged pull requests requested.
	prFetchLimit = 100

	prFetchTimeout = 120 * time.Second
	blameWorkers   = 8
)

// cloneProgressRe matches git progress lines such as "Receiving objects:  45% (12/27)".
var cloneProgressRe = regexp.MustCompile(`(?:remote: )?(Receiving objects|Resolving deltas|Counting objects|Compressing objects):\s+(\d+)%`)

// Options tunes a Service.
type Options struct {
	CloneDir          string
	KeepClones        bool
	MaxRepoSizeMB     int
	MaxBlameFiles     int
	DiffTruncateChars int
	Excludes          []string
}

// OptionsFromConfig extracts the ingestion options from the process configuration.
func OptionsFromConfig(cfg *contract.Config) Options {
	return Options{
		CloneDir:          cfg.CloneDir,
		KeepClones:        cfg.KeepClones,
		MaxRepoSizeMB:     cfg.MaxRepoSizeMB,
		MaxBlameFiles:     cfg.MaxBlameFiles,
		DiffTruncateChars: cfg.DiffTruncateChars,
		Excludes:          cfg.Excludes,
	}
}

// lease counts the jobs using one clone directory.
type lease struct {
	mu   sync.Mutex // Held while cloning or pulling
	refs int
}

// Service implements contract.Ingestor with git and the gh CLI.
type Service struct {
	git    contract.GitClient
	gh     contract.GitHubClient
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	leases map[string]*lease
}

var _ contract.Ingestor = &Service{} // Compile-time check

// NewService creates an ingestion service.
func NewService(git contract.GitClient, gh contract.GitHubClient, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = contract.NewDiscardLogger()
	}
	if opts.CloneDir == "" {
		opts.CloneDir = contract.DefaultCloneDir
	}
	return &Service{
		git:    git,
		gh:     gh,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		leases: make(map[string]*lease),
	}
}

// Ingest implements the Ingestor interface.
// Only clone, history and window failures are fatal; pull request and blame problems degrade the output.
func (s *Service) Ingest(ctx context.Context, repoURL string, months int, onProgress contract.ProgressFunc) (*schema.IngestionOutput, error) {
	progress := func(msg string, p float64) {
		if onProgress != nil {
			onProgress(msg, p)
		}
	}

	identity, err := schema.RepoIdentity(repoURL)
	if err != nil {
		return nil, &contract.IngestionError{Op: "parse", Err: err}
	}
	log := s.logger.With("repo", identity)

	progress("Checking repository size...", 0)
	if err := s.checkSize(ctx, identity, log); err != nil {
		return nil, err
	}

	progress("Cloning repository...", 0.05)
	repoPath, err := s.acquire(ctx, repoURL, identity, progress, log)
	if err != nil {
		return nil, err
	}
	out := &schema.IngestionOutput{
		RepoURL:      repoURL,
		RepoIdentity: identity,
		RepoPath:     repoPath,
		LoginToEmail: map[string]string{},
		BotEmails:    map[string]struct{}{},
	}
	fail := func(err error) (*schema.IngestionOutput, error) {
		s.Cleanup(out)
		return nil, err
	}

	progress("Extracting commit history...", 0.2)
	since := s.now().AddDate(0, -months, 0)
	raw, err := s.git.GetActivityLog(ctx, repoPath, since)
	if err != nil {
		return fail(&contract.IngestionError{Op: "log", Err: err})
	}
	out.Commits = agg.ParseCommitLog(raw, s.opts.Excludes)
	if len(out.Commits) == 0 {
		return fail(&contract.IngestionError{
			Op:  "window",
			Err: fmt.Errorf("no commits found in the last %d months, try a longer time range", months),
		})
	}
	log.Info("Parsed commit history", "commits", len(out.Commits))

	progress("Fetching pull requests...", 0.5)
	s.fetchPullRequests(ctx, out, since, log)

	progress("Running git blame...", 0.7)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	out.Blame = s.blame(ctx, repoPath, agg.MostChangedFiles(out.Commits, s.opts.MaxBlameFiles, s.opts.Excludes), log)
	out.BlameAvailable = len(out.Blame) > 0

	progress("Data collection complete", 1)
	return out, nil
}

// checkSize rejects repositories over the limit. An unavailable size is not an error.
func (s *Service) checkSize(ctx context.Context, identity string, log *slog.Logger) error {
	if s.gh == nil || s.opts.MaxRepoSizeMB <= 0 {
		return nil
	}
	sizeKB, err := s.gh.RepoSizeKB(ctx, identity)
	if err != nil {
		log.Warn("Repository size check skipped", "error", err)
		return nil
	}
	sizeMB := sizeKB / 1024
	if sizeMB > s.opts.MaxRepoSizeMB {
		return &contract.IngestionError{
			Op:  "size",
			Err: fmt.Errorf("repository %s is %d MB, exceeding the %d MB limit", identity, sizeMB, s.opts.MaxRepoSizeMB),
		}
	}
	log.Debug("Repository size check passed", "size_mb", sizeMB, "limit_mb", s.opts.MaxRepoSizeMB)
	return nil
}

// acquire returns a usable clone and takes a reference on it.
// An existing full clone is pulled when no other job uses it; a partial clone is replaced.
func (s *Service) acquire(ctx context.Context, repoURL, identity string, progress contract.ProgressFunc, log *slog.Logger) (string, error) {
	dest, err := filepath.Abs(filepath.Join(contract.ExpandHome(s.opts.CloneDir), schema.IdentityFileName(identity)))
	if err != nil {
		return "", &contract.IngestionError{Op: "clone", Err: err}
	}

	s.mu.Lock()
	l, ok := s.leases[dest]
	if !ok {
		l = &lease{}
		s.leases[dest] = l
	}
	l.refs++
	shared := l.refs > 1
	s.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, statErr := os.Stat(filepath.Join(dest, ".git")); statErr == nil {
		switch {
		case shared:
			log.Debug("Reusing clone held by another job", "path", dest)
			return dest, nil
		case s.git.IsPartialClone(ctx, dest):
			log.Info("Replacing partial clone", "path", dest)
			if err := os.RemoveAll(dest); err != nil {
				s.release(dest)
				return "", &contract.IngestionError{Op: "clone", Err: err}
			}
		default:
			progress("Updating existing clone...", 0.1)
			if err := s.git.Pull(ctx, dest); err != nil {
				log.Warn("Pull failed, using existing clone", "error", err)
			}
			return dest, nil
		}
	} else if _, err := os.Stat(dest); err == nil {
		_ = os.RemoveAll(dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		s.release(dest)
		return "", &contract.IngestionError{Op: "clone", Err: err}
	}
	err = s.git.Clone(ctx, repoURL, dest, func(line string) {
		if m := cloneProgressRe.FindStringSubmatch(line); m != nil {
			pct, _ := strconv.Atoi(m[2])
			progress(fmt.Sprintf("Cloning repository... %s: %d%%", m[1], pct), 0.05+0.15*float64(pct)/100)
		}
	})
	if err != nil {
		_ = os.RemoveAll(dest)
		s.release(dest)
		return "", &contract.IngestionError{Op: "clone", Err: err}
	}
	log.Info("Cloned repository", "path", dest)
	return dest, nil
}

// release drops one reference taken by acquire.
func (s *Service) release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(path)
}

// releaseLocked drops one reference and reports whether it was the last. s.mu must be held.
func (s *Service) releaseLocked(path string) bool {
	l, ok := s.leases[path]
	if !ok {
		return false
	}
	l.refs--
	if l.refs > 0 {
		return false
	}
	delete(s.leases, path)
	return true
}

// fetchPullRequests fills pull request data, the login map and bot emails.
// Failures are recorded on the output and never abort ingestion.
func (s *Service) fetchPullRequests(ctx context.Context, out *schema.IngestionOutput, since time.Time, log *slog.Logger) {
	if s.gh == nil {
		out.PRError = &contract.AuthError{Err: errors.New("no GitHub client configured")}
		return
	}
	prCtx, cancel := context.WithTimeout(ctx, prFetchTimeout)
	defer cancel()

	prs, err := s.gh.PullRequests(prCtx, out.RepoIdentity, since, prFetchLimit)
	if err != nil {
		if !contract.IsAuthError(err) {
			err = &contract.AuthError{Err: err}
		}
		out.PRError = err
		log.Warn("Continuing without pull request data", "error", err)
		return
	}
	out.PullRequests = prs
	for _, pr := range prs {
		if pr.AuthorEmail == "" || pr.Author == "ghost" {
			continue
		}
		if _, ok := out.LoginToEmail[pr.Author]; !ok {
			out.LoginToEmail[pr.Author] = pr.AuthorEmail
		}
		if pr.IsBot {
			out.BotEmails[strings.ToLower(pr.AuthorEmail)] = struct{}{}
		}
	}
	log.Info("Fetched pull requests", "count", len(prs))
}

// blame runs blame on each path with a small worker pool. Failed files are skipped.
// The output keeps the order of paths.
func (s *Service) blame(ctx context.Context, repoPath string, paths []string, log *slog.Logger) []schema.BlameFile {
	results := make([]*schema.BlameFile, len(paths))
	var g errgroup.Group
	g.SetLimit(blameWorkers)
	for i, path := range paths {
		g.Go(func() error {
			raw, err := s.git.Blame(ctx, repoPath, path)
			if err != nil {
				log.Debug("Blame skipped", "path", path, "error", err)
				return nil
			}
			bf := agg.ParseBlamePorcelain(path, raw)
			if bf.TotalLines > 0 {
				results[i] = &bf
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]schema.BlameFile, 0, len(paths))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Cleanup implements the Ingestor interface.
// The clone is removed when its last user releases it, unless clones are kept.
func (s *Service) Cleanup(out *schema.IngestionOutput) {
	if out == nil || out.RepoPath == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.releaseLocked(out.RepoPath) || s.opts.KeepClones {
		return
	}
	if err := os.RemoveAll(out.RepoPath); err != nil {
		s.logger.Warn("Failed to remove clone", "path", out.RepoPath, "error", err)
		return
	}
	s.logger.Debug("Removed clone", "path", out.RepoPath)
}
