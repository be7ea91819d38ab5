package core

import (
	"fmt"
	"testing"

	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeByID(g schema.Graph, id string) (schema.GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return schema.GraphNode{}, false
}

func edgeOf(g schema.Graph, source, target string) (schema.GraphEdge, bool) {
	for _, e := range g.Edges {
		if e.Source == source && e.Target == target {
			return e, true
		}
	}
	return schema.GraphEdge{}, false
}

func TestBuildGraph_StatsOnly(t *testing.T) {
	stats := ComputeStats(sampleIngestion())
	g := BuildGraph(stats.Contributors, stats.Modules, nil, nil)

	require.Len(t, g.Nodes, 5)
	require.Len(t, g.Edges, 4)

	alice, ok := nodeByID(g, "c:"+aliceEmail)
	require.True(t, ok)
	assert.Equal(t, schema.NodeContributor, alice.Kind)
	assert.Equal(t, "Alice Smith", alice.Label)
	assert.InDelta(t, 15.0, alice.Size, 1e-9)
	assert.Empty(t, alice.ExpertiseAreas)

	bot, ok := nodeByID(g, "c:"+botEmail)
	require.True(t, ok)
	assert.Equal(t, schema.NodeBot, bot.Kind)
	assert.InDelta(t, 6.0, bot.Size, 1e-9)

	api, ok := nodeByID(g, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, schema.NodeModule, api.Kind)
	assert.InDelta(t, 20.0, api.Size, 1e-9)
	assert.Equal(t, string(schema.RiskLow), api.RiskOrDepth)
	assert.Equal(t, 0.7, api.Metrics["bus_factor"])
	assert.Equal(t, 5.0, api.Metrics["total_commits"])

	core, ok := nodeByID(g, "m:billing/core")
	require.True(t, ok)
	assert.InDelta(t, 8.0, core.Size, 1e-9)

	e, ok := edgeOf(g, "c:"+aliceEmail, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, 0.8, e.Weight)
	assert.Equal(t, 4, e.CommitCount)
	assert.Equal(t, schema.DepthWorking, e.ExpertiseDepth)

	e, ok = edgeOf(g, "c:"+botEmail, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, 0.2, e.Weight)

	_, ok = nodeByID(g, "m:docs/guide.md")
	assert.False(t, ok, "bot-only module is not a node")
}

func TestBuildGraph_FiltersOrphansAndFaintEdges(t *testing.T) {
	var modules []schema.Module
	for i := range 21 {
		modules = append(modules, schema.Module{
			Path:                fmt.Sprintf("pkg/m%02d", i),
			TotalCommits:        300 - i,
			PerContributorStats: map[string]schema.ContributorModuleStats{"main@x.io": {Commits: 300 - i}},
		})
	}
	modules[0].TotalCommits = 301
	modules[0].PerContributorStats["faint@x.io"] = schema.ContributorModuleStats{Commits: 1}
	modules[20].PerContributorStats["late@x.io"] = schema.ContributorModuleStats{Commits: 50}

	contributors := []schema.Contributor{
		{Identity: "main@x.io", TotalCommits: 5000},
		{Identity: "late@x.io", TotalCommits: 50},
		{Identity: "faint@x.io", TotalCommits: 1},
	}
	g := BuildGraph(contributors, modules, nil, nil)

	_, ok := nodeByID(g, "c:main@x.io")
	assert.True(t, ok)
	_, ok = nodeByID(g, "c:late@x.io")
	assert.False(t, ok, "only linked to a module outside the top 20")
	_, ok = nodeByID(g, "c:faint@x.io")
	assert.False(t, ok, "its only edge is below the weight floor")
	_, ok = nodeByID(g, "m:pkg/m20")
	assert.False(t, ok)
	assert.Len(t, g.Edges, 20)
	assert.Len(t, g.Nodes, 21)
}

func TestBuildGraph_Expertise(t *testing.T) {
	stats := ComputeStats(sampleIngestion())
	expertise := []schema.ExpertiseClassification{
		{PRNumber: 1, Author: "alice", KnowledgeDepth: schema.DepthDeep, ModulesTouched: []string{"billing/api"}},
		{PRNumber: 2, Author: "alice", KnowledgeDepth: schema.DepthArchitect, ModulesTouched: []string{"billing/core/x.go"}},
		{PRNumber: 3, Author: "bob", KnowledgeDepth: schema.DepthSurface, ModulesTouched: []string{"/billing/api/"}},
		{PRNumber: 4, Author: "alice", KnowledgeDepth: schema.DepthSurface, ModulesTouched: []string{"billing/api"}},
		{PRNumber: 5, Author: "stranger", KnowledgeDepth: schema.DepthArchitect, ModulesTouched: []string{"billing/api"}},
	}
	g := BuildGraph(stats.Contributors, stats.Modules, expertise, map[string]string{"alice": aliceEmail})

	e, ok := edgeOf(g, "c:"+aliceEmail, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, schema.DepthDeep, e.ExpertiseDepth, "highest depth wins")

	e, ok = edgeOf(g, "c:"+aliceEmail, "m:billing/core")
	require.True(t, ok)
	assert.Equal(t, schema.DepthArchitect, e.ExpertiseDepth, "file paths map to their module")

	e, ok = edgeOf(g, "c:"+bobEmail, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, schema.DepthSurface, e.ExpertiseDepth)

	alice, ok := nodeByID(g, "c:"+aliceEmail)
	require.True(t, ok)
	assert.Equal(t, []string{"billing/api", "billing/core"}, alice.ExpertiseAreas)
	assert.Equal(t, string(schema.DepthArchitect), alice.RiskOrDepth)

	e, ok = edgeOf(g, "c:"+botEmail, "m:billing/api")
	require.True(t, ok)
	assert.Equal(t, schema.DepthWorking, e.ExpertiseDepth)
}

func TestMergeExpertise_TieBreaksOnRecency(t *testing.T) {
	contributors := []schema.Contributor{{Identity: aliceEmail, TotalCommits: 3}}
	modules := []schema.Module{{Path: "billing/api", TotalCommits: 3}}

	expertise := []schema.ExpertiseClassification{
		{PRNumber: 9, Author: "alice", KnowledgeDepth: schema.DepthDeep, ModulesTouched: []string{"billing/api"}, MergedAt: baseTime},
		{PRNumber: 4, Author: "alice", KnowledgeDepth: schema.DepthDeep, ModulesTouched: []string{"billing/api"}, MergedAt: baseTime.AddDate(0, 0, 1)},
		{PRNumber: 2, Author: "alice", KnowledgeDepth: schema.DepthDeep, ModulesTouched: []string{"billing/api"}, MergedAt: baseTime.AddDate(0, 0, 1)},
	}
	got := mergeExpertise(contributors, modules, expertise, nil)
	assert.Equal(t, 4, got[aliceEmail]["billing/api"].prNumber)

	// Without merge times the higher PR number is the most recent
	for i := range expertise {
		expertise[i].MergedAt = baseTime
	}
	got = mergeExpertise(contributors, modules, expertise, nil)
	assert.Equal(t, 9, got[aliceEmail]["billing/api"].prNumber)
}

func TestBuildGraph_Empty(t *testing.T) {
	g := BuildGraph(nil, nil, nil, nil)
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
}
