package agg

import (
	"testing"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `---XRAY_COMMIT---
aaa111
Ada Lovelace
ada@example.com
2026-05-01T10:00:00+00:00
Add billing engine (#12)

120	4	billing/engine/calc.go
3	0	billing/README.md
-	-	assets/logo.png
10	2	go.sum
---XRAY_COMMIT---
bbb222
12345+grace@users.noreply.github.com
12345+grace@users.noreply.github.com
2026-05-02T11:30:00-07:00
Rename handlers

5	5	api/{old => new}/handler.go
1	1	web/{ => src}/main.ts
---XRAY_COMMIT---
ccc333
Broken
broken@example.com
not-a-date
Skipped
---XRAY_COMMIT---
ddd444
Empty Commit
empty@example.com
2026-05-03T00:00:00Z
Merge branch 'main'
`

func TestParseCommitLog(t *testing.T) {
	commits := ParseCommitLog([]byte(sampleLog), contract.DefaultExcludes)
	require.Len(t, commits, 3, "the block with a bad date is skipped")

	first := commits[0]
	assert.Equal(t, "aaa111", first.Hash)
	assert.Equal(t, "Ada Lovelace", first.AuthorName)
	assert.Equal(t, "ada@example.com", first.AuthorEmail)
	assert.Equal(t, "Add billing engine (#12)", first.Message)
	assert.True(t, first.Date.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []schema.FileChange{
		{Path: "billing/engine/calc.go", Additions: 120, Deletions: 4},
		{Path: "billing/README.md", Additions: 3, Deletions: 0},
	}, first.Files, "binary assets and lockfiles are excluded")

	second := commits[1]
	assert.Equal(t, []schema.FileChange{
		{Path: "api/new/handler.go", Additions: 5, Deletions: 5},
		{Path: "web/src/main.ts", Additions: 1, Deletions: 1},
	}, second.Files)

	assert.Empty(t, commits[2].Files)
}

func TestParseCommitLogEmpty(t *testing.T) {
	assert.Empty(t, ParseCommitLog(nil, nil))
	assert.Empty(t, ParseCommitLog([]byte("\n\n"), nil))
}

func TestParseFileStatsLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   schema.FileChange
		wantOK bool
	}{
		{"plain", "1\t2\ta/b.go", schema.FileChange{Path: "a/b.go", Additions: 1, Deletions: 2}, true},
		{"binary", "-\t-\timg.png", schema.FileChange{Path: "img.png"}, true},
		{"simple rename", "0\t0\told.go => new.go", schema.FileChange{Path: "new.go"}, true},
		{"braced rename", "2\t0\tsrc/{a => b}/x.go", schema.FileChange{Path: "src/b/x.go", Additions: 2}, true},
		{"not numeric", "x\t1\ta.go", schema.FileChange{}, false},
		{"too few fields", "1\t2", schema.FileChange{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseFileStatsLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRenamePath(t *testing.T) {
	tests := []struct {
		input, oldPath, newPath string
	}{
		{"a.go => b.go", "a.go", "b.go"},
		{"pkg/{old => new}/f.go", "pkg/old/f.go", "pkg/new/f.go"},
		{"pkg/{ => sub}/f.go", "pkg/f.go", "pkg/sub/f.go"},
		{"pkg/{old}/f.go", "", ""},
		{"pkg/}bad{ => x", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			o, n := parseRenamePath(tt.input)
			assert.Equal(t, tt.oldPath, o)
			assert.Equal(t, tt.newPath, n)
		})
	}
}

const samplePorcelain = "aaa111 1 1 2\n" +
	"author Ada Lovelace\n" +
	"author-mail <ada@example.com>\n" +
	"author-time 1714557600\n" +
	"summary Add billing engine\n" +
	"filename billing/calc.go\n" +
	"\tpackage billing\n" +
	"aaa111 2 2\n" +
	"author Ada Lovelace\n" +
	"author-mail <ada@example.com>\n" +
	"filename billing/calc.go\n" +
	"\t\n" +
	"bbb222 3 3 1\n" +
	"author Grace Hopper\n" +
	"author-mail <grace@example.com>\n" +
	"filename billing/calc.go\n" +
	"\tfunc Calc() {}\n"

func TestParseBlamePorcelain(t *testing.T) {
	bf := ParseBlamePorcelain("billing/calc.go", []byte(samplePorcelain))
	assert.Equal(t, "billing/calc.go", bf.Path)
	assert.Equal(t, 3, bf.TotalLines)
	assert.Equal(t, []schema.BlameEntry{
		{AuthorName: "Ada Lovelace", AuthorEmail: "ada@example.com", Lines: 2},
		{AuthorName: "Grace Hopper", AuthorEmail: "grace@example.com", Lines: 1},
	}, bf.Entries)

	empty := ParseBlamePorcelain("x", nil)
	assert.Zero(t, empty.TotalLines)
	assert.Empty(t, empty.Entries)
}

func TestMostChangedFiles(t *testing.T) {
	commits := []schema.Commit{
		{Files: []schema.FileChange{{Path: "b.go"}, {Path: "a.go"}, {Path: "yarn.lock"}}},
		{Files: []schema.FileChange{{Path: "b.go"}, {Path: "c.go"}, {Path: "yarn.lock"}}},
		{Files: []schema.FileChange{{Path: "c.go"}, {Path: "yarn.lock"}}},
	}
	assert.Equal(t, []string{"b.go", "c.go"}, MostChangedFiles(commits, 2, contract.DefaultExcludes))
	assert.Equal(t, []string{"b.go", "c.go", "a.go"}, MostChangedFiles(commits, 10, contract.DefaultExcludes))
	assert.Nil(t, MostChangedFiles(commits, 0, nil))
}
