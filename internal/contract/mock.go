package contract

import (
	"context"
	"time"

	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/mock"
)

// --- MockGitClient Implementation ---

// MockGitClient is a mock type for the GitClient type.
type MockGitClient struct {
	mock.Mock
}

var _ GitClient = &MockGitClient{} // Compile-time check

// Run implements the GitClient interface.
func (m *MockGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	mockArgs := []any{ctx, repoPath}
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	ret := m.Called(mockArgs...)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// Clone implements the GitClient interface.
func (m *MockGitClient) Clone(ctx context.Context, url, dest string, onProgress func(line string)) error {
	ret := m.Called(ctx, url, dest, onProgress)
	return ret.Error(0)
}

// Pull implements the GitClient interface.
func (m *MockGitClient) Pull(ctx context.Context, repoPath string) error {
	ret := m.Called(ctx, repoPath)
	return ret.Error(0)
}

// IsPartialClone implements the GitClient interface.
func (m *MockGitClient) IsPartialClone(ctx context.Context, repoPath string) bool {
	ret := m.Called(ctx, repoPath)
	return ret.Bool(0)
}

// GetActivityLog implements the GitClient interface.
func (m *MockGitClient) GetActivityLog(ctx context.Context, repoPath string, since time.Time) ([]byte, error) {
	ret := m.Called(ctx, repoPath, since)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// Blame implements the GitClient interface.
func (m *MockGitClient) Blame(ctx context.Context, repoPath, path string) ([]byte, error) {
	ret := m.Called(ctx, repoPath, path)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// FindCommit implements the GitClient interface.
func (m *MockGitClient) FindCommit(ctx context.Context, repoPath string, filter ...string) (string, error) {
	mockArgs := []any{ctx, repoPath}
	for _, f := range filter {
		mockArgs = append(mockArgs, f)
	}
	ret := m.Called(mockArgs...)
	return ret.String(0), ret.Error(1)
}

// ShowCommit implements the GitClient interface.
func (m *MockGitClient) ShowCommit(ctx context.Context, repoPath, hash string) ([]byte, error) {
	ret := m.Called(ctx, repoPath, hash)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// --- MockGitHubClient Implementation ---

// MockGitHubClient is a mock type for the GitHubClient type.
type MockGitHubClient struct {
	mock.Mock
}

var _ GitHubClient = &MockGitHubClient{} // Compile-time check

// RepoSizeKB implements the GitHubClient interface.
func (m *MockGitHubClient) RepoSizeKB(ctx context.Context, slug string) (int, error) {
	ret := m.Called(ctx, slug)
	return ret.Int(0), ret.Error(1)
}

// PullRequests implements the GitHubClient interface.
func (m *MockGitHubClient) PullRequests(ctx context.Context, slug string, since time.Time, limit int) ([]schema.PullRequest, error) {
	ret := m.Called(ctx, slug, since, limit)
	prs, _ := ret.Get(0).([]schema.PullRequest)
	return prs, ret.Error(1)
}

// --- MockIngestor Implementation ---

// MockIngestor is a mock type for the Ingestor type.
type MockIngestor struct {
	mock.Mock
}

var _ Ingestor = &MockIngestor{} // Compile-time check

// Ingest implements the Ingestor interface.
func (m *MockIngestor) Ingest(ctx context.Context, repoURL string, months int, onProgress ProgressFunc) (*schema.IngestionOutput, error) {
	ret := m.Called(ctx, repoURL, months, onProgress)
	out, _ := ret.Get(0).(*schema.IngestionOutput)
	return out, ret.Error(1)
}

// Diff implements the Ingestor interface.
func (m *MockIngestor) Diff(ctx context.Context, out *schema.IngestionOutput, pr schema.PullRequest) (string, error) {
	ret := m.Called(ctx, out, pr)
	return ret.String(0), ret.Error(1)
}

// Cleanup implements the Ingestor interface.
func (m *MockIngestor) Cleanup(out *schema.IngestionOutput) {
	m.Called(out)
}

// --- MockClassifier Implementation ---

// MockClassifier is a mock type for the Classifier type.
type MockClassifier struct {
	mock.Mock
}

var _ Classifier = &MockClassifier{} // Compile-time check

// ClassifyCode implements the Classifier interface.
func (m *MockClassifier) ClassifyCode(ctx context.Context, pr schema.PullRequest, diff string) (*schema.ExpertiseClassification, error) {
	ret := m.Called(ctx, pr, diff)
	c, _ := ret.Get(0).(*schema.ExpertiseClassification)
	return c, ret.Error(1)
}

// ClassifyReview implements the Classifier interface.
func (m *MockClassifier) ClassifyReview(ctx context.Context, pr schema.PullRequest) ([]schema.ReviewClassification, error) {
	ret := m.Called(ctx, pr)
	c, _ := ret.Get(0).([]schema.ReviewClassification)
	return c, ret.Error(1)
}

// DetectPatterns implements the Classifier interface.
func (m *MockClassifier) DetectPatterns(ctx context.Context, result *schema.AnalysisResult) (*schema.PatternResult, error) {
	ret := m.Called(ctx, result)
	p, _ := ret.Get(0).(*schema.PatternResult)
	return p, ret.Error(1)
}
