package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AbbreviateName shortens a contributor display name to "First L" for table columns.
// Bot accounts and single-word names come back unchanged apart from spacing.
func AbbreviateName(name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, "[bot]") {
		return strings.Join(strings.Fields(name), " ")
	}

	bare := strings.Trim(name, "()\"'`")
	var words []string
	for _, w := range strings.Fields(bare) {
		w = strings.TrimSuffix(strings.TrimFunc(w, isNamePunct), ".")
		if w != "" {
			words = append(words, w)
		}
	}
	switch len(words) {
	case 0:
		return bare
	case 1:
		return words[0]
	}
	initial, _ := utf8.DecodeRuneInString(words[len(words)-1])
	return words[0] + " " + string(initial)
}

// isNamePunct reports runes that never start or end a name word.
func isNamePunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-' && r != '\'' && r != '.'
}

// ErrBadRepoIdentity means a URL has no owner/repo path.
var ErrBadRepoIdentity = errors.New("cannot parse owner/repo")

// RepoIdentity normalizes a repository URL or slug to "owner/repo".
// Surrounding whitespace, trailing slashes and a ".git" suffix are ignored.
func RepoIdentity(repoURL string) (string, error) {
	url := strings.TrimSpace(repoURL)
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimRight(url, "/")
	url = strings.ReplaceAll(url, ":", "/") // git@github.com:owner/repo

	var parts []string
	for p := range strings.SplitSeq(url, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", fmt.Errorf("%w from %q", ErrBadRepoIdentity, repoURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

var identityEscaper = strings.NewReplacer("%", "%25", "_", "%5F", "/", "_")

// IdentityFileName maps "owner/repo" to a flat file stem "owner_repo".
// Literal underscores and percent signs are percent-escaped so distinct identities never share a stem.
func IdentityFileName(identity string) string {
	return identityEscaper.Replace(identity)
}

// FileToModule maps a file path to its logical module (top two directory levels).
func FileToModule(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "root"
	}
	parts := strings.SplitN(path, "/", 3)
	if len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
