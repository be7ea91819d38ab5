package contract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlainLabel(t *testing.T) {
	tests := []struct {
		input    schema.RiskLevel
		expected string
	}{
		{schema.RiskCritical, "Critical"},
		{schema.RiskHigh, "High"},
		{schema.RiskModerate, "Moderate"},
		{schema.RiskLow, "Low"},
		{"", "Low"},
	}
	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetPlainLabel(tt.input))
		})
	}
}

func TestGetColorLabel(t *testing.T) {
	for _, level := range []schema.RiskLevel{schema.RiskCritical, schema.RiskHigh, schema.RiskModerate, schema.RiskLow} {
		t.Run(string(level), func(t *testing.T) {
			assert.Contains(t, GetColorLabel(level), GetPlainLabel(level))
			assert.Contains(t, Colorize(level, "x"), "x")
		})
	}
}

func TestSelectOutputFile(t *testing.T) {
	t.Run("empty path returns stdout", func(t *testing.T) {
		f, err := SelectOutputFile("")
		require.NoError(t, err)
		assert.Equal(t, os.Stdout, f)
	})

	t.Run("valid path creates file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		f, err := SelectOutputFile(path)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.FileExists(t, path)
	})
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		excludes []string
		expected bool
	}{
		{"lockfile by name", "web/package-lock.json", DefaultExcludes, true},
		{"go.sum at root", "go.sum", DefaultExcludes, true},
		{"minified asset", "static/app.min.js", DefaultExcludes, true},
		{"vendored tree", "vendor/github.com/x/y.go", DefaultExcludes, true},
		{"nested node_modules", "web/node_modules/react/index.js", DefaultExcludes, true},
		{"generated protobuf", "api/v1/service.pb.go", DefaultExcludes, true},
		{"regular source", "core/stats.go", DefaultExcludes, false},
		{"name substring is not a match", "docs/go.summary.md", DefaultExcludes, false},
		{"empty patterns", "core/stats.go", []string{"", "  "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldIgnore(tt.path, tt.excludes))
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandHome("~/x/y"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "rel", ExpandHome("rel"))
}

func TestDBFilePaths(t *testing.T) {
	assert.NotEqual(t, GetCacheDBFilePath(), GetRunsDBFilePath())
	assert.Contains(t, GetResultsDir(), filepath.Join(".xray", "results"))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short", TruncatePath("short", 10))
	assert.Equal(t, "...ng/path", TruncatePath("a/very/long/path", 10))
	assert.Equal(t, "abcdef", TruncatePath("abcdef", 3))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	base := assert.AnError
	var err error = &IngestionError{Op: "clone", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "clone")

	err = &AuthError{Err: base}
	assert.True(t, IsAuthError(err))
	assert.False(t, IsProtocolError(err))

	err = &ProtocolError{Field: "months", Reason: "must be between 1 and 24"}
	assert.True(t, IsProtocolError(err))
	assert.Equal(t, "invalid months: must be between 1 and 24", err.Error())

	err = &ClassifierError{Kind: ClassifierTimeout, Item: "PR #42", Err: base}
	assert.Contains(t, err.Error(), "PR #42")
	assert.ErrorIs(t, err, base)
}
