package outwriter

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/olekukonko/tablewriter"
)

// PrintCachedList outputs the cached analyses, dispatching based on the output format configured.
func PrintCachedList(list []schema.CachedSummary, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		if cfg.Output == schema.JSONOut {
			return writeJSON(w, list)
		}
		return writeCachedTable(w, list)
	}, "Wrote cached listing")
}

func writeCachedTable(w io.Writer, list []schema.CachedSummary) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No cached analyses.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Repository", "Months", "Commits", "Contributors", "Analyzed At"})

	var data [][]string
	for _, s := range list {
		data = append(data, []string{
			s.RepoIdentity,
			strconv.Itoa(s.MonthsWindow),
			strconv.Itoa(s.TotalCommits),
			strconv.Itoa(s.TotalContributors),
			s.AnalyzedAt.Local().Format(time.DateTime),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
