package core

import (
	"maps"
	"slices"
	"sort"

	"github.com/huangsam/xray/core/algo"
	"github.com/huangsam/xray/schema"
)

// StatsOutput is the contributor and module view of one ingestion.
type StatsOutput struct {
	Contributors      []schema.Contributor
	Modules           []schema.Module
	TotalCommits      int // Non-bot commits in the window
	TotalContributors int // Non-bot contributors
}

// moduleAcc accumulates one module before shares are computed.
type moduleAcc struct {
	stats      map[string]*schema.ContributorModuleStats
	botCommits map[string]int
	commits    int
	totalLines int
	blameLines int // Non-bot blame lines
}

func newModuleAcc() *moduleAcc {
	return &moduleAcc{
		stats:      make(map[string]*schema.ContributorModuleStats),
		botCommits: make(map[string]int),
	}
}

func (m *moduleAcc) contributor(id string) *schema.ContributorModuleStats {
	cs, ok := m.stats[id]
	if !ok {
		cs = &schema.ContributorModuleStats{}
		m.stats[id] = cs
	}
	return cs
}

// ComputeStats builds the contributor×module matrix with ownership shares and bus factors.
// It performs no I/O and its output depends only on its input.
// Bots are classified first and kept out of every share, total and bus factor.
func ComputeStats(in *schema.IngestionOutput) *StatsOutput {
	resolver := NewIdentityResolver(in.LoginToEmail, in.BotEmails)
	contributors := make(map[string]*schema.Contributor)
	activeModules := make(map[string]map[string]struct{})
	modules := make(map[string]*moduleAcc)
	totalCommits := 0

	// An identity is a bot if any of its commits looks like one
	botIDs := make(map[string]struct{})
	for _, c := range in.Commits {
		id := resolver.Resolve(c.AuthorEmail)
		if resolver.IsBot(c.AuthorName, c.AuthorEmail) || resolver.IsBot(c.AuthorName, id) {
			botIDs[id] = struct{}{}
		}
	}

	for _, c := range in.Commits {
		id := resolver.Resolve(c.AuthorEmail)
		_, bot := botIDs[id]

		ct, ok := contributors[id]
		if !ok {
			ct = &schema.Contributor{Identity: id, FirstActivity: c.Date, LastActivity: c.Date}
			contributors[id] = ct
			activeModules[id] = make(map[string]struct{})
		}
		ct.DisplayName = preferName(ct.DisplayName, c.AuthorName)
		ct.TotalCommits++
		if c.Date.Before(ct.FirstActivity) {
			ct.FirstActivity = c.Date
		}
		if c.Date.After(ct.LastActivity) {
			ct.LastActivity = c.Date
		}
		if !bot {
			totalCommits++
		}

		// A commit counts once per module it touches
		touched := make(map[string]schema.FileChange)
		for _, f := range c.Files {
			ct.TotalAdditions += f.Additions
			ct.TotalDeletions += f.Deletions
			mod := schema.FileToModule(f.Path)
			sum := touched[mod]
			sum.Additions += f.Additions
			sum.Deletions += f.Deletions
			touched[mod] = sum
		}
		for mod, sum := range touched {
			activeModules[id][mod] = struct{}{}
			acc, ok := modules[mod]
			if !ok {
				acc = newModuleAcc()
				modules[mod] = acc
			}
			if bot {
				acc.botCommits[id]++
				continue
			}
			cs := acc.contributor(id)
			cs.Commits++
			cs.Additions += sum.Additions
			cs.Deletions += sum.Deletions
			acc.commits++
		}
	}

	if in.BlameAvailable {
		for _, bf := range in.Blame {
			acc, ok := modules[schema.FileToModule(bf.Path)]
			if !ok {
				continue // No activity in the window
			}
			acc.totalLines += bf.TotalLines
			for _, e := range bf.Entries {
				id := resolver.Resolve(e.AuthorEmail)
				if _, isBot := botIDs[id]; isBot || resolver.IsBot(e.AuthorName, e.AuthorEmail) {
					continue
				}
				acc.contributor(id).BlameLines += e.Lines
				acc.blameLines += e.Lines
			}
		}
	}

	out := &StatsOutput{TotalCommits: totalCommits}
	for id, ct := range contributors {
		_, ct.IsBot = botIDs[id]
		ct.ActiveModules = slices.Sorted(maps.Keys(activeModules[id]))
		out.Contributors = append(out.Contributors, *ct)
		if !ct.IsBot {
			out.TotalContributors++
		}
	}
	sort.Slice(out.Contributors, func(i, j int) bool {
		a, b := out.Contributors[i], out.Contributors[j]
		if a.TotalCommits != b.TotalCommits {
			return a.TotalCommits > b.TotalCommits
		}
		return a.Identity < b.Identity
	})

	for path, acc := range modules {
		if acc.commits == 0 {
			continue // Only bots touched it
		}
		out.Modules = append(out.Modules, finishModule(path, acc))
	}
	sort.Slice(out.Modules, func(i, j int) bool {
		a, b := out.Modules[i], out.Modules[j]
		if a.TotalCommits != b.TotalCommits {
			return a.TotalCommits > b.TotalCommits
		}
		return a.Path < b.Path
	})

	if out.Contributors == nil {
		out.Contributors = []schema.Contributor{}
	}
	if out.Modules == nil {
		out.Modules = []schema.Module{}
	}
	return out
}

// finishModule computes shares, bus factor and risk for an accumulated module.
// Shares come from blame lines when the module has any, otherwise from commits.
func finishModule(path string, acc *moduleAcc) schema.Module {
	m := schema.Module{
		Path:                path,
		PerContributorStats: make(map[string]schema.ContributorModuleStats, len(acc.stats)),
		TotalCommits:        acc.commits,
		TotalLines:          acc.totalLines,
		OwnershipShares:     make(map[string]float64),
	}

	ids := slices.Sorted(maps.Keys(acc.stats))
	for _, id := range ids {
		m.PerContributorStats[id] = *acc.stats[id]
	}

	useBlame := acc.blameLines > 0
	m.OwnershipSource = schema.OwnershipCommits
	denominator := float64(acc.commits)
	if useBlame {
		m.OwnershipSource = schema.OwnershipBlame
		denominator = float64(acc.blameLines)
	}

	shares := make([]float64, 0, len(ids))
	for _, id := range ids {
		cs := acc.stats[id]
		weight := float64(cs.Commits)
		if useBlame {
			weight = float64(cs.BlameLines)
		}
		if weight <= 0 {
			continue
		}
		share := weight / denominator
		m.OwnershipShares[id] = share
		shares = append(shares, share)
	}

	m.BusFactor = algo.BusFactor(shares)
	m.RiskLevel = algo.RiskLevelFor(m.BusFactor)

	if len(acc.botCommits) > 0 {
		m.BotCommits = maps.Clone(acc.botCommits)
	}
	return m
}
