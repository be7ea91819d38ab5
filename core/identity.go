package core

import (
	"regexp"
	"slices"
	"strings"
)

var (
	// noreplyRe matches GitHub noreply emails such as "123+login@users.noreply.github.com".
	noreplyRe = regexp.MustCompile(`(?i)^(?:\d+\+)?(.+)@users\.noreply\.github\.com$`)

	// ghIDPrefixRe matches the numeric id GitHub prepends to some author names.
	ghIDPrefixRe = regexp.MustCompile(`^\d+\+`)

	// botRe matches well-known automation accounts by name or email.
	botRe = regexp.MustCompile(`(?i)\[bot\]|github-actions|dependabot|renovate|greenkeeper|semantic-release`)
)

// IdentityResolver maps raw commit emails onto stable contributor identities.
type IdentityResolver struct {
	byLogin   map[string]string // lowercase login -> email
	botEmails map[string]struct{}
}

// NewIdentityResolver builds a resolver from the PR-derived login map and bot emails.
func NewIdentityResolver(loginToEmail map[string]string, botEmails map[string]struct{}) *IdentityResolver {
	r := &IdentityResolver{
		byLogin:   make(map[string]string, len(loginToEmail)),
		botEmails: make(map[string]struct{}, len(botEmails)),
	}
	for login, email := range loginToEmail {
		r.byLogin[strings.ToLower(login)] = email
	}
	for email := range botEmails {
		r.botEmails[strings.ToLower(email)] = struct{}{}
	}
	return r
}

// Resolve returns the identity of an email. Noreply addresses resolve through the login map.
func (r *IdentityResolver) Resolve(email string) string {
	if m := noreplyRe.FindStringSubmatch(email); m != nil {
		if resolved, ok := r.byLogin[strings.ToLower(m[1])]; ok {
			return resolved
		}
	}
	return email
}

// IsBot reports whether an author is automation, by pattern or by PR-derived bot email.
func (r *IdentityResolver) IsBot(name, email string) bool {
	if botRe.MatchString(name) || botRe.MatchString(email) {
		return true
	}
	_, ok := r.botEmails[strings.ToLower(email)]
	return ok
}

// CleanDisplayName strips the numeric GitHub id prefix from an author name.
func CleanDisplayName(name string) string {
	return ghIDPrefixRe.ReplaceAllString(strings.TrimSpace(name), "")
}

// preferName returns the better display name of two candidates.
// A longer name containing a space (a human full name) wins.
func preferName(current, candidate string) string {
	candidate = CleanDisplayName(candidate)
	if current == "" {
		return candidate
	}
	if len(candidate) > len(current) && strings.Contains(candidate, " ") {
		return candidate
	}
	return current
}

// LoginMatcher maps GitHub logins onto contributor identities.
type LoginMatcher struct {
	loginToEmail map[string]string
	identities   []string // In contributor order
}

// NewLoginMatcher creates a matcher over the ordered contributor identities.
func NewLoginMatcher(loginToEmail map[string]string, identities []string) *LoginMatcher {
	m := &LoginMatcher{loginToEmail: make(map[string]string, len(loginToEmail)), identities: identities}
	for login, email := range loginToEmail {
		m.loginToEmail[strings.ToLower(login)] = email
	}
	return m
}

// Match returns the identity of a login, or "" when no heuristic applies.
// The PR-derived map wins; then exact local part, domain name and a shared prefix of 3+ chars.
func (m *LoginMatcher) Match(login string) string {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return ""
	}
	if email, ok := m.loginToEmail[login]; ok && m.known(email) {
		return email
	}

	for _, strategy := range []func(local, domain string) bool{
		func(local, _ string) bool { return local == login },
		func(_, domain string) bool { return domain == login },
		func(local, _ string) bool {
			short := min(len(local), len(login))
			return short >= 3 && (strings.HasPrefix(local, login) || strings.HasPrefix(login, local))
		},
	} {
		for _, id := range m.identities {
			local, domain := splitEmail(id)
			if strategy(local, domain) {
				return id
			}
		}
	}
	return ""
}

// known reports whether an identity belongs to the matcher's contributors.
func (m *LoginMatcher) known(identity string) bool {
	return slices.Contains(m.identities, identity)
}

// splitEmail returns the lowercase local part (after any "+") and the first domain label.
func splitEmail(email string) (string, string) {
	email = strings.ToLower(email)
	local, domain, _ := strings.Cut(email, "@")
	if _, after, ok := strings.Cut(local, "+"); ok {
		local = after
	}
	domainName, _, _ := strings.Cut(domain, ".")
	return local, domainName
}
