package contract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// LocalGitClient implements the GitClient interface by executing the
// local 'git' binary installed on the machine.
type LocalGitClient struct{}

var _ GitClient = &LocalGitClient{} // Compile-time check

// NewLocalGitClient creates a new instance of the local Git client.
func NewLocalGitClient() *LocalGitClient {
	return &LocalGitClient{}
}

// Run executes a git command and returns its stdout output.
func (c *LocalGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		return nil, fmt.Errorf("git %s failed in %q: %s", args[0], repoPath, stderr)
	} else if err != nil {
		return nil, fmt.Errorf("git command failed: %w. Ensure Git is installed and available on your PATH", err)
	}
	return out, nil
}

// Clone implements the GitClient interface.
// Progress lines are split on both carriage returns and newlines.
func (c *LocalGitClient) Clone(ctx context.Context, url, dest string, onProgress func(line string)) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--progress", url, dest)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git clone failed: %w. Ensure Git is installed and available on your PATH", err)
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onProgress != nil {
			onProgress(line)
		}
		tail = append(tail, line)
		if len(tail) > 5 {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git clone of %s failed: %s", url, strings.Join(tail, "; "))
	}
	return nil
}

// scanProgressLines is a bufio.SplitFunc that treats '\r' like '\n'.
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Pull implements the GitClient interface.
func (c *LocalGitClient) Pull(ctx context.Context, repoPath string) error {
	_, err := c.Run(ctx, repoPath, "pull", "--ff-only", "--quiet")
	return err
}

// IsPartialClone implements the GitClient interface.
func (c *LocalGitClient) IsPartialClone(ctx context.Context, repoPath string) bool {
	out, err := c.Run(ctx, repoPath, "config", "--get", "remote.origin.promisor")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

// GetActivityLog implements the GitClient interface.
func (c *LocalGitClient) GetActivityLog(ctx context.Context, repoPath string, since time.Time) ([]byte, error) {
	args := []string{
		"log",
		"--numstat",
		"--format=" + CommitMarker + "%n%H%n%an%n%ae%n%aI%n%s",
	}
	if !since.IsZero() {
		args = append(args, "--since="+since.Format(time.RFC3339))
	}
	return c.Run(ctx, repoPath, args...)
}

// Blame implements the GitClient interface.
func (c *LocalGitClient) Blame(ctx context.Context, repoPath, path string) ([]byte, error) {
	return c.Run(ctx, repoPath, "blame", "--line-porcelain", "HEAD", "--", path)
}

// FindCommit implements the GitClient interface.
func (c *LocalGitClient) FindCommit(ctx context.Context, repoPath string, filter ...string) (string, error) {
	args := append([]string{"log", "-n", "1", "--format=%H"}, filter...)
	out, err := c.Run(ctx, repoPath, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ShowCommit implements the GitClient interface.
func (c *LocalGitClient) ShowCommit(ctx context.Context, repoPath, hash string) ([]byte, error) {
	return c.Run(ctx, repoPath, "show", "--format=", "--stat", "--patch", hash)
}

// CommitMarker separates commits in the activity log.
const CommitMarker = "---XRAY_COMMIT---"
