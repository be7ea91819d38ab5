// Package agg has parsing and aggregation logic for raw Git output.
package agg

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// headerLines is the number of lines in a commit header: hash, name, email, date, subject.
const headerLines = 5

// ParseCommitLog parses the activity log produced by GitClient.GetActivityLog.
// Blocks with a truncated header are skipped; excluded files are dropped from each commit.
func ParseCommitLog(raw []byte, excludes []string) []schema.Commit {
	var commits []schema.Commit
	for _, block := range strings.Split(string(raw), contract.CommitMarker) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < headerLines {
			continue
		}
		c, ok := parseCommitHeader(lines[:headerLines])
		if !ok {
			continue
		}
		for _, l := range lines[headerLines:] {
			fc, ok := parseFileStatsLine(l)
			if !ok || contract.ShouldIgnore(fc.Path, excludes) {
				continue
			}
			c.Files = append(c.Files, fc)
		}
		commits = append(commits, c)
	}
	return commits
}

// parseCommitHeader extracts the commit identity from the header lines.
func parseCommitHeader(lines []string) (schema.Commit, bool) {
	hash := strings.TrimSpace(lines[0])
	if hash == "" {
		return schema.Commit{}, false
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[3]))
	if err != nil {
		return schema.Commit{}, false
	}
	return schema.Commit{
		Hash:        hash,
		AuthorName:  strings.TrimSpace(lines[1]),
		AuthorEmail: strings.TrimSpace(lines[2]),
		Date:        date,
		Message:     strings.TrimSpace(lines[4]),
	}, true
}

// parseFileStatsLine parses a numstat row. Renames resolve to the new path.
func parseFileStatsLine(line string) (schema.FileChange, bool) {
	line = strings.TrimRight(line, "\r")
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 3 {
		return schema.FileChange{}, false
	}

	add, ok := parseChurnValue(parts[0])
	if !ok {
		return schema.FileChange{}, false
	}
	del, ok := parseChurnValue(parts[1])
	if !ok {
		return schema.FileChange{}, false
	}

	path := parts[2]
	if strings.Contains(path, " => ") {
		_, path = parseRenamePath(path)
	}
	if path == "" {
		return schema.FileChange{}, false
	}
	return schema.FileChange{Path: path, Additions: add, Deletions: del}, true
}

// parseChurnValue converts a churn string to int, handling "-" (binary) as 0.
func parseChurnValue(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "-" {
		return 0, true
	}
	val, err := strconv.Atoi(s)
	if err != nil || val < 0 {
		return 0, false
	}
	return val, true
}

// parseRenamePath extracts old and new paths from a rename string.
func parseRenamePath(path string) (string, string) {
	if !strings.Contains(path, "{") {
		// Simple format: "old => new"
		parts := strings.SplitN(path, " => ", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
		return "", ""
	}

	// Braced format: prefix{old => new}suffix
	braceStart := strings.Index(path, "{")
	braceEnd := strings.Index(path, "}")
	if braceStart == -1 || braceEnd == -1 || braceStart >= braceEnd {
		return "", ""
	}

	prefix := path[:braceStart]
	renamePart := path[braceStart+1 : braceEnd]
	suffix := path[braceEnd+1:]

	renameParts := strings.SplitN(renamePart, " => ", 2)
	if len(renameParts) != 2 {
		return "", ""
	}
	return joinRename(prefix, renameParts[0], suffix), joinRename(prefix, renameParts[1], suffix)
}

// joinRename joins the pieces of a braced rename, collapsing the double slash
// git leaves behind when one side of the braces is empty.
func joinRename(prefix, middle, suffix string) string {
	p := prefix + middle + suffix
	return strings.ReplaceAll(p, "//", "/")
}

// ParseBlamePorcelain aggregates `git blame --line-porcelain` output by author.
// Entries are ordered by lines descending, then email.
func ParseBlamePorcelain(path string, raw []byte) schema.BlameFile {
	type key struct{ name, email string }
	counts := make(map[key]int)
	var current key
	total := 0

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "author "):
			current.name = line[len("author "):]
		case strings.HasPrefix(line, "author-mail "):
			current.email = strings.Trim(line[len("author-mail "):], "<>")
		case strings.HasPrefix(line, "\t"):
			counts[current]++
			total++
		}
	}

	entries := make([]schema.BlameEntry, 0, len(counts))
	for k, n := range counts {
		entries = append(entries, schema.BlameEntry{AuthorName: k.name, AuthorEmail: k.email, Lines: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Lines != entries[j].Lines {
			return entries[i].Lines > entries[j].Lines
		}
		if entries[i].AuthorEmail != entries[j].AuthorEmail {
			return entries[i].AuthorEmail < entries[j].AuthorEmail
		}
		return entries[i].AuthorName < entries[j].AuthorName
	})

	return schema.BlameFile{Path: path, Entries: entries, TotalLines: total}
}

// MostChangedFiles returns the top 'limit' paths by number of commits touching them.
// Ties are broken by path so the blame sample is deterministic.
func MostChangedFiles(commits []schema.Commit, limit int, excludes []string) []string {
	if limit <= 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, c := range commits {
		for _, f := range c.Files {
			if contract.ShouldIgnore(f.Path, excludes) {
				continue
			}
			counts[f.Path]++
		}
	}

	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if counts[paths[i]] != counts[paths[j]] {
			return counts[paths[i]] > counts[paths[j]]
		}
		return paths[i] < paths[j]
	})
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}
