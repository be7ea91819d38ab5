package contract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/xray/schema"
)

type riskStyle struct {
	label string
	color *color.Color
}

// riskStyles is the console palette of each risk level.
var riskStyles = map[schema.RiskLevel]riskStyle{
	schema.RiskCritical: {"Critical", color.New(color.FgRed, color.Bold)},
	schema.RiskHigh:     {"High", color.New(color.FgMagenta, color.Bold)},
	schema.RiskModerate: {"Moderate", color.New(color.FgYellow)},
	schema.RiskLow:      {"Low", color.New(color.FgCyan)},
}

func styleOf(level schema.RiskLevel) riskStyle {
	if st, ok := riskStyles[level]; ok {
		return st
	}
	return riskStyles[schema.RiskLow]
}

// GetPlainLabel returns the display label of a risk level. Unknown levels read as Low.
// The level itself is computed once by the statistics stage and never re-derived here.
func GetPlainLabel(level schema.RiskLevel) string {
	return styleOf(level).label
}

// GetColorLabel returns the colored label of a risk level for console tables.
func GetColorLabel(level schema.RiskLevel) string {
	st := styleOf(level)
	return st.color.Sprint(st.label)
}

// Colorize paints text in the color of a risk level.
func Colorize(level schema.RiskLevel, text string) string {
	return styleOf(level).color.Sprint(text)
}

// SelectOutputFile returns the appropriate file handle for output.
// An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// ShouldIgnore returns true if the given path matches any of the exclude patterns.
// It supports simple glob patterns (using filepath.Match) when the pattern
// contains wildcard characters (*, ?, [ ]). Patterns ending with '/' are treated
// as prefixes. Patterns starting with '.' are treated as suffix (extension) matches.
func ShouldIgnore(path string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}

		if strings.ContainsAny(ex, "*?[") {
			pat := strings.ReplaceAll(ex, "**", "*")
			if ok, err := filepath.Match(pat, path); err == nil && ok {
				return true
			}
			// Also try matching against the base filename (e.g. *.min.js)
			if ok, err := filepath.Match(pat, filepath.Base(path)); err == nil && ok {
				return true
			}
			continue
		}

		switch {
		case strings.HasSuffix(ex, "/"):
			if strings.HasPrefix(path, ex) || strings.Contains(path, "/"+ex) {
				return true
			}
		case strings.HasPrefix(ex, "."):
			if strings.HasSuffix(path, ex) {
				return true
			}
		case filepath.Base(path) == ex:
			return true
		}
	}
	return false
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	slog.Error("fatal: "+msg, "error", err)
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning through the process logger.
func LogWarn(msg string, err error) {
	slog.Warn(msg, "error", err)
}

// homePath joins name onto the home directory, falling back to the working directory.
func homePath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(homeDir, name)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for the result cache.
func GetCacheDBFilePath() string {
	return homePath(".xray_cache.db")
}

// GetRunsDBFilePath returns the path to the SQLite DB file for run tracking.
func GetRunsDBFilePath() string {
	return homePath(".xray_runs.db")
}

// GetResultsDir returns the default directory of the file result cache.
func GetResultsDir() string {
	return homePath(filepath.Join(".xray", "results"))
}

// ExpandHome replaces a leading ~ with the home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return homePath("")
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return homePath(rest)
	}
	return path
}

// TruncatePath truncates a path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to ensure there's space for both the "..." prefix and at least one character of content.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
