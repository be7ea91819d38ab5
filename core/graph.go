package core

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/huangsam/xray/core/algo"
	"github.com/huangsam/xray/schema"
)

const (
	// maxGraphModules is the number of modules projected as nodes.
	maxGraphModules = 20

	// minEdgeWeight drops edges too faint to matter.
	minEdgeWeight = 0.01
)

// depthObservation is the strongest classification seen for one (contributor, module) pair.
type depthObservation struct {
	depth    schema.KnowledgeDepth
	prNumber int
	mergedAt int64
}

// newer reports whether o comes from a more recent pull request than other.
func (o depthObservation) newer(other depthObservation) bool {
	if o.mergedAt != other.mergedAt {
		return o.mergedAt > other.mergedAt
	}
	return o.prNumber > other.prNumber
}

// BuildGraph projects contributors and modules into a knowledge graph.
// Expertise classifications, when present, set the depth of each contributor-module edge.
// The output is deterministic for a given input.
func BuildGraph(
	contributors []schema.Contributor,
	modules []schema.Module,
	expertise []schema.ExpertiseClassification,
	loginToEmail map[string]string,
) schema.Graph {
	depths := mergeExpertise(contributors, modules, expertise, loginToEmail)

	top := modules[:min(len(modules), maxGraphModules)]
	maxModCommits := 1
	for _, m := range top {
		maxModCommits = max(maxModCommits, m.TotalCommits)
	}

	var edges []schema.GraphEdge
	addEdge := func(identity, module string, commits int, depth schema.KnowledgeDepth) {
		weight := float64(commits) / float64(maxModCommits)
		if weight < minEdgeWeight {
			return
		}
		edges = append(edges, schema.GraphEdge{
			Source:         contributorNodeID(identity),
			Target:         moduleNodeID(module),
			Weight:         algo.RoundTo(weight, 3),
			CommitCount:    commits,
			ExpertiseDepth: depth,
		})
	}
	for _, m := range top {
		for _, id := range slices.Sorted(maps.Keys(m.PerContributorStats)) {
			depth := schema.DepthWorking
			if obs, ok := depths[id][m.Path]; ok {
				depth = obs.depth
			}
			addEdge(id, m.Path, m.PerContributorStats[id].Commits, depth)
		}
		for _, id := range slices.Sorted(maps.Keys(m.BotCommits)) {
			addEdge(id, m.Path, m.BotCommits[id], schema.DepthWorking)
		}
	}

	linked := make(map[string]struct{}, len(edges)*2)
	for _, e := range edges {
		linked[e.Source] = struct{}{}
		linked[e.Target] = struct{}{}
	}

	maxCommits := 1
	for _, c := range contributors {
		maxCommits = max(maxCommits, c.TotalCommits)
	}

	nodes := make([]schema.GraphNode, 0, len(linked))
	for _, c := range contributors {
		id := contributorNodeID(c.Identity)
		if _, ok := linked[id]; !ok {
			continue
		}
		node := schema.GraphNode{
			ID:    id,
			Kind:  schema.NodeContributor,
			Label: c.DisplayName,
			Size:  3 + float64(c.TotalCommits)/float64(maxCommits)*12,
			Metrics: map[string]float64{
				"total_commits": float64(c.TotalCommits),
				"total_lines":   float64(c.TotalAdditions + c.TotalDeletions),
			},
		}
		if node.Label == "" {
			node.Label = c.Identity
		}
		if c.IsBot {
			node.Kind = schema.NodeBot
		}
		if areas := depths[c.Identity]; len(areas) > 0 {
			node.ExpertiseAreas = slices.Sorted(maps.Keys(areas))
			best := schema.DepthSurface
			for _, obs := range areas {
				if schema.DepthRank(obs.depth) > schema.DepthRank(best) {
					best = obs.depth
				}
			}
			node.RiskOrDepth = string(best)
		}
		nodes = append(nodes, node)
	}
	for _, m := range top {
		id := moduleNodeID(m.Path)
		if _, ok := linked[id]; !ok {
			continue
		}
		nodes = append(nodes, schema.GraphNode{
			ID:          id,
			Kind:        schema.NodeModule,
			Label:       m.Path,
			Size:        5 + float64(m.TotalCommits)/float64(maxModCommits)*15,
			RiskOrDepth: string(m.RiskLevel),
			Metrics: map[string]float64{
				"bus_factor":    m.BusFactor,
				"total_commits": float64(m.TotalCommits),
				"total_lines":   float64(m.TotalLines),
			},
		})
	}

	if edges == nil {
		edges = []schema.GraphEdge{}
	}
	return schema.Graph{Nodes: nodes, Edges: edges}
}

// mergeExpertise folds classifications into identity -> module -> strongest observation.
// Authors are GitHub logins and are matched onto contributor identities first.
func mergeExpertise(
	contributors []schema.Contributor,
	modules []schema.Module,
	expertise []schema.ExpertiseClassification,
	loginToEmail map[string]string,
) map[string]map[string]depthObservation {
	out := make(map[string]map[string]depthObservation)
	if len(expertise) == 0 {
		return out
	}

	identities := make([]string, 0, len(contributors))
	for _, c := range contributors {
		if !c.IsBot {
			identities = append(identities, c.Identity)
		}
	}
	matcher := NewLoginMatcher(loginToEmail, identities)
	knownModules := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		knownModules[m.Path] = struct{}{}
	}

	// Sort by PR so that the merge does not depend on classification arrival order
	ordered := slices.Clone(expertise)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].PRNumber < ordered[j].PRNumber })

	for _, ec := range ordered {
		identity := matcher.Match(ec.Author)
		if identity == "" {
			continue
		}
		obs := depthObservation{depth: ec.KnowledgeDepth, prNumber: ec.PRNumber, mergedAt: ec.MergedAt.UnixNano()}
		if schema.DepthRank(obs.depth) == schema.DepthRank(schema.DepthWorking) {
			obs.depth = schema.DepthWorking
		}
		for _, raw := range ec.ModulesTouched {
			mod := normalizeModule(raw, knownModules)
			if mod == "" {
				continue
			}
			byModule, ok := out[identity]
			if !ok {
				byModule = make(map[string]depthObservation)
				out[identity] = byModule
			}
			current, seen := byModule[mod]
			switch {
			case !seen:
				byModule[mod] = obs
			case schema.DepthRank(obs.depth) > schema.DepthRank(current.depth):
				byModule[mod] = obs
			case schema.DepthRank(obs.depth) == schema.DepthRank(current.depth) && obs.newer(current):
				byModule[mod] = obs
			}
		}
	}
	return out
}

// normalizeModule maps a classifier-reported module onto a known module path.
func normalizeModule(raw string, known map[string]struct{}) string {
	mod := strings.Trim(strings.TrimSpace(raw), "/")
	if mod == "" {
		return ""
	}
	if _, ok := known[mod]; ok {
		return mod
	}
	return schema.FileToModule(mod)
}

func contributorNodeID(identity string) string { return "c:" + identity }

func moduleNodeID(path string) string { return "m:" + path }
