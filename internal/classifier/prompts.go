package classifier

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/huangsam/xray/schema"
)

// Limits applied when rendering prompts.
const (
	maxPromptFiles         = 20
	maxReviewComments      = 15
	maxReviewCommentChars  = 300
	maxSummaryContributors = 15
	maxSummaryModules      = 15
	maxSummaryOwners       = 3
	maxContributorModules  = 5
)

const codeSystemPrompt = `You analyze git diffs to understand expertise depth in engineering teams.

Given a pull request's diff, metadata, and file list, classify the author's expertise:

## Classification Fields

**change_type**: One of: feature, bugfix, refactor, test, docs, config, dependency, performance
**complexity**: One of: trivial, moderate, complex, highly_complex
**knowledge_depth**: One of:
- surface: Template-following, boilerplate, copy-paste patterns
- working: Non-trivial changes showing understanding of the codebase
- deep: Understands edge cases, architecture constraints, performance implications
- architect: Designed or reshaped this area; shows system-level thinking

**expertise_signals**: 2-4 specific observations from the diff that support your classification.
**modules_touched**: The logical modules (top 2 directory levels) this PR touches.
**summary**: One sentence describing what this change does and why it indicates this depth level.

## Calibration
- Most changes are "working" level.
- "architect" is rare. Use it only for changes that restructure systems or define new abstractions.
- "surface" is for truly trivial changes: typo fixes, config tweaks, copy-pasted patterns.
- "deep" requires evidence such as handled edge cases, performance-conscious choices or understood failure modes.

Respond with only a JSON object matching this schema:
{
  "change_type": "string",
  "complexity": "string",
  "knowledge_depth": "string",
  "expertise_signals": ["string"],
  "modules_touched": ["string"],
  "summary": "string"
}`

const reviewSystemPrompt = `You assess the quality of code reviews in engineering teams.

Given a PR's reviews (reviewer name, state, body text, line comments), classify each review:

## Review Quality Levels
- **rubber_stamp**: LGTM with no substance, empty body, or fewer than 10 words. Approved without meaningful review.
- **surface**: Only addresses style, naming, formatting. No logic analysis.
- **thorough**: Addresses logic, edge cases, architecture, or performance. Shows understanding of the change.
- **mentoring**: Explains why something should be different, provides context, references patterns or docs.

## Output Fields per Review
- **reviewer**: The reviewer's username
- **quality**: One of the levels above
- **signals**: 2-3 specific observations supporting your classification
- **knowledge_transfer**: true if the review teaches something (mentoring always true, thorough sometimes)
- **summary**: One sentence about this review's quality

## Rules
- A review includes both the top-level body and line-level comments.
- Only classify as rubber_stamp if the body is empty or trivial and there are zero line comments.
- CHANGES_REQUESTED does not automatically mean thorough. Check the content.
- Most reviews are surface or rubber_stamp. Mentoring is rare.

Respond with only a JSON array of review classifications:
[{
  "reviewer": "string",
  "quality": "string",
  "signals": ["string"],
  "knowledge_transfer": boolean,
  "summary": "string"
}]`

const patternSystemPrompt = `You detect hidden patterns in engineering team dynamics.

You will receive aggregated data about a repository: contributor stats, module ownership, bus factors, expertise classifications, and review quality assessments.

Find things a human scanning git log would never notice.

## What to Look For
- Bus factor crisis: modules where one person holds all knowledge
- Silent knowledge drain: contributors whose last commit is old but hold critical blame ownership
- Review blindspots: modules with low review quality or no cross-team review
- Hidden experts: low commit count but architect-level changes on critical modules
- Cross-pollinators: people who bridge multiple modules
- Emerging owners: recently active contributors taking over from original authors
- Review asymmetry: reviewers who are thorough on some modules but rubber-stamp others
- Knowledge silos: clusters of people who only review each other's code

## Output Format
Respond with only a JSON object:
{
  "executive_summary": "2-3 sentence overview of the team's knowledge health",
  "insights": [
    {
      "category": "risk|opportunity|pattern|recommendation",
      "title": "Short, specific title",
      "description": "Detailed explanation with specific names, modules, and evidence",
      "severity": "low|medium|high|critical",
      "people": ["person1"],
      "modules": ["module1"]
    }
  ],
  "recommendations": ["Specific, actionable recommendation"]
}

## Rules
- Name people and modules with evidence.
- Prefer non-obvious connections over restating the top committer.
- Each insight should suggest what a team lead could do about it.
- Generate 5-10 insights, prioritized by impact.
- Keep executive_summary under 100 words and each recommendation under 50 words.`

// codeMessage renders the user turn for a code classification.
func codeMessage(pr schema.PullRequest, diff string) string {
	files := pr.Files
	if len(files) > maxPromptFiles {
		files = files[:maxPromptFiles]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "PR #%d: %s\n", pr.Number, pr.Title)
	fmt.Fprintf(&b, "Author: %s\n", pr.Author)
	fmt.Fprintf(&b, "Files changed: %d | +%d -%d\n", pr.ChangedFiles, pr.Additions, pr.Deletions)
	fmt.Fprintf(&b, "Files: %s\n\n", strings.Join(files, ", "))
	b.WriteString("--- DIFF ---\n")
	b.WriteString(diff)
	b.WriteString("\n")
	return b.String()
}

// reviewMessage renders the user turn for a review classification.
// Bot reviews are omitted.
func reviewMessage(pr schema.PullRequest) string {
	var parts []string
	for _, r := range pr.Reviews {
		if r.IsBot {
			continue
		}
		body := r.Body
		if strings.TrimSpace(body) == "" {
			body = "(empty)"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Reviewer: %s\nState: %s\nBody: %s", r.Author, r.State, body)
		if len(r.Comments) == 0 {
			b.WriteString("\nLine comments: none")
		} else {
			fmt.Fprintf(&b, "\nLine comments (%d total):", len(r.Comments))
			for i, c := range r.Comments {
				if i == maxReviewComments {
					fmt.Fprintf(&b, "\n  ... and %d more comments", len(r.Comments)-maxReviewComments)
					break
				}
				fmt.Fprintf(&b, "\n  %d. %s", i+1, truncateRunes(c, maxReviewCommentChars))
			}
		}
		parts = append(parts, b.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PR #%d: %s\n", pr.Number, pr.Title)
	fmt.Fprintf(&b, "Author: %s\n", pr.Author)
	fmt.Fprintf(&b, "+%d -%d across %d files\n\n", pr.Additions, pr.Deletions, pr.ChangedFiles)
	b.WriteString("--- REVIEWS ---\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

// patternMessage renders the aggregate summary fed to pattern detection.
func patternMessage(r *schema.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repository Analysis: %s\n", r.RepoIdentity)
	fmt.Fprintf(&b, "Period: last %d months\n", r.MonthsWindow)
	fmt.Fprintf(&b, "Total commits: %d | Contributors: %d | PRs analyzed: %d\n\n", r.TotalCommits, r.TotalContributors, r.TotalPRs)

	b.WriteString("## Top Contributors\n")
	for i, c := range r.Contributors {
		if i == maxSummaryContributors {
			break
		}
		modules := c.ActiveModules
		if len(modules) > maxContributorModules {
			modules = modules[:maxContributorModules]
		}
		fmt.Fprintf(&b, "- %s (%s): %d commits, +%d/-%d lines, active in: %s\n",
			c.DisplayName, c.Identity, c.TotalCommits, c.TotalAdditions, c.TotalDeletions, strings.Join(modules, ", "))
	}

	b.WriteString("\n## Module Ownership & Bus Factor\n")
	for i, m := range r.Modules {
		if i == maxSummaryModules {
			break
		}
		var owners []string
		for _, o := range topOwners(m.OwnershipShares, maxSummaryOwners) {
			owners = append(owners, fmt.Sprintf("%s: %.0f%%", o, m.OwnershipShares[o]*100))
		}
		fmt.Fprintf(&b, "- **%s** (bus_factor=%.2f, risk=%s): %d commits, ownership: [%s]\n",
			m.Path, m.BusFactor, m.RiskLevel, m.TotalCommits, strings.Join(owners, ", "))
	}

	if len(r.ExpertiseClassifications) > 0 {
		b.WriteString("\n## Expertise Classifications\n")
		for _, ec := range r.ExpertiseClassifications {
			fmt.Fprintf(&b, "- PR#%d by %s: %s (%s, %s): %s\n",
				ec.PRNumber, ec.Author, ec.KnowledgeDepth, ec.ChangeType, ec.Complexity, ec.Summary)
		}
	}
	if len(r.ReviewClassifications) > 0 {
		b.WriteString("\n## Review Quality Assessments\n")
		for _, rc := range r.ReviewClassifications {
			fmt.Fprintf(&b, "- PR#%d reviewer %s: %s (knowledge_transfer=%t): %s\n",
				rc.PRNumber, rc.Reviewer, rc.Quality, rc.KnowledgeTransfer, rc.Summary)
		}
	}
	return b.String()
}

// topOwners returns up to n identities by descending share, ties broken by identity.
func topOwners(shares map[string]float64, n int) []string {
	ids := make([]string, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(shares[b], shares[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
