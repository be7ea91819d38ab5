package outwriter

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintAnalysisResult outputs an analysis result, dispatching based on the output format configured.
func PrintAnalysisResult(result *schema.AnalysisResult, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	default:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeResultText(w, result, cfg, duration)
		}, "Wrote report"); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
	}
	return nil
}

func writeResultText(w io.Writer, result *schema.AnalysisResult, cfg *contract.Config, duration time.Duration) error {
	fmt.Fprintf(w, "%s (last %d months): %d commits, %d contributors, %d pull requests\n\n",
		result.RepoIdentity, result.MonthsWindow, result.TotalCommits, result.TotalContributors, result.TotalPRs)

	if err := writeModuleTable(w, result, GetMaxTablePathWidth(cfg)); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := writeContributorTable(w, result); err != nil {
		return err
	}
	writeInsights(w, result)

	if !result.PullRequestDataAvailable {
		fmt.Fprintln(w, "Pull request data was unavailable; classification stages were skipped.")
	}
	if result.SkippedClassifications > 0 {
		fmt.Fprintf(w, "%d classifications were skipped.\n", result.SkippedClassifications)
	}
	if duration > 0 {
		fmt.Fprintf(w, "Analysis completed in %v. Cache backend: %s\n", duration.Round(time.Millisecond), cfg.CacheBackend)
	}
	return nil
}

// sortModulesByRisk orders modules from the lowest bus factor up, ties broken by path.
func sortModulesByRisk(modules []schema.Module) []schema.Module {
	sorted := slices.Clone(modules)
	slices.SortFunc(sorted, func(a, b schema.Module) int {
		if c := cmp.Compare(a.BusFactor, b.BusFactor); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return sorted
}

// writeModuleTable prints the module ownership table, riskiest modules first.
func writeModuleTable(w io.Writer, result *schema.AnalysisResult, pathWidth int) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Module", "Risk", "Bus Factor", "Commits", "Lines", "Top Owners", "Source"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	names := displayNames(result.Contributors)
	var data [][]string
	for i, m := range sortModulesByRisk(result.Modules) {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			contract.TruncatePath(m.Path, pathWidth),
			contract.GetColorLabel(m.RiskLevel),
			fmt.Sprintf("%.2f", m.BusFactor),
			strconv.Itoa(m.TotalCommits),
			strconv.Itoa(m.TotalLines),
			formatTopOwners(m, names),
			m.OwnershipSource,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// deepestExpertise maps contributor identities to the deepest classified knowledge depth
// of their pull requests. Authors are resolved to identities through the login map.
func deepestExpertise(result *schema.AnalysisResult) map[string]schema.KnowledgeDepth {
	deepest := make(map[string]schema.KnowledgeDepth)
	for _, ec := range result.ExpertiseClassifications {
		id := ec.Author
		if email, ok := result.LoginToEmail[ec.Author]; ok {
			id = email
		}
		if cur, ok := deepest[id]; !ok || schema.DepthRank(ec.KnowledgeDepth) > schema.DepthRank(cur) {
			deepest[id] = ec.KnowledgeDepth
		}
	}
	return deepest
}

// writeContributorTable prints human contributors by commit count.
func writeContributorTable(w io.Writer, result *schema.AnalysisResult) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Contributor", "Commits", "Added", "Deleted", "Modules", "Deepest PR", "Last Active"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	humans := slices.DeleteFunc(slices.Clone(result.Contributors), func(c schema.Contributor) bool { return c.IsBot })
	slices.SortStableFunc(humans, func(a, b schema.Contributor) int {
		if c := cmp.Compare(b.TotalCommits, a.TotalCommits); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})

	depths := deepestExpertise(result)
	var data [][]string
	for _, c := range humans {
		depth := "-"
		if d, ok := depths[c.Identity]; ok {
			depth = string(d)
		}
		lastActive := "-"
		if !c.LastActivity.IsZero() {
			lastActive = c.LastActivity.Format(time.DateOnly)
		}
		data = append(data, []string{
			schema.AbbreviateName(c.DisplayName),
			strconv.Itoa(c.TotalCommits),
			strconv.Itoa(c.TotalAdditions),
			strconv.Itoa(c.TotalDeletions),
			strconv.Itoa(len(c.ActiveModules)),
			depth,
			lastActive,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeInsights prints the pattern-detection summary when one is present.
func writeInsights(w io.Writer, result *schema.AnalysisResult) {
	pr := result.PatternResult
	if pr == nil || (pr.ExecutiveSummary == "" && len(pr.Insights) == 0) {
		return
	}
	fmt.Fprintln(w)
	if pr.ExecutiveSummary != "" {
		fmt.Fprintf(w, "Summary: %s\n", pr.ExecutiveSummary)
	}
	for _, in := range pr.Insights {
		fmt.Fprintf(w, "  [%s] %s: %s\n", severityLabel(in.Severity), in.Title, in.Description)
	}
	if len(pr.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range pr.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	fmt.Fprintln(w)
}

// severityLevels maps insight severities onto the risk palette.
var severityLevels = map[schema.Severity]schema.RiskLevel{
	schema.SeverityCritical: schema.RiskCritical,
	schema.SeverityHigh:     schema.RiskHigh,
	schema.SeverityMedium:   schema.RiskModerate,
}

func severityLabel(s schema.Severity) string {
	level, ok := severityLevels[s]
	if !ok {
		level = schema.RiskLow
	}
	return contract.Colorize(level, strings.ToUpper(string(s)))
}
