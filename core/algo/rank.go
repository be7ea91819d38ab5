package algo

import (
	"math"
	"sort"
	"strings"

	"github.com/huangsam/xray/schema"
)

// Review controversy weights by review state.
var reviewWeights = map[string]float64{
	"CHANGES_REQUESTED": 1.5,
	"COMMENTED":         0.5,
	"APPROVED":          0.3,
}

// ScorePullRequest rates how much a pull request says about its author's expertise.
// It sums capped size, breadth and discussion terms with a review controversy term.
func ScorePullRequest(pr schema.PullRequest) float64 {
	size := math.Min(float64(pr.Additions+pr.Deletions)/500, 3)
	breadth := math.Min(float64(pr.ChangedFiles)/5, 2)
	discussion := math.Min(float64(pr.Comments)/3, 2)

	var controversy float64
	for _, r := range pr.Reviews {
		controversy += reviewWeights[r.State]
	}
	return size + breadth + discussion + controversy
}

// RankPullRequests sorts pull requests by score in descending order
// and returns the top 'limit' of them. Ties keep ascending PR number order.
// Bot-authored pull requests are never candidates.
func RankPullRequests(prs []schema.PullRequest, limit int) []schema.PullRequest {
	if limit <= 0 {
		return []schema.PullRequest{}
	}
	type scored struct {
		pr    schema.PullRequest
		score float64
	}
	items := make([]scored, 0, len(prs))
	for _, pr := range prs {
		if pr.IsBot {
			continue
		}
		items = append(items, scored{pr: pr, score: ScorePullRequest(pr)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].pr.Number < items[j].pr.Number
	})

	out := make([]schema.PullRequest, 0, min(limit, len(items)))
	for i := 0; i < len(items) && i < limit; i++ {
		out = append(out, items[i].pr)
	}
	return out
}

// ReviewTextLength is the total number of characters of human review text on a pull request.
func ReviewTextLength(pr schema.PullRequest) int {
	total := 0
	for _, r := range pr.Reviews {
		if r.IsBot {
			continue
		}
		total += len(strings.TrimSpace(r.Body))
		for _, c := range r.Comments {
			total += len(strings.TrimSpace(c))
		}
	}
	return total
}

// ReviewCandidates returns up to 'limit' pull requests that carry human review text,
// ordered by total review text length descending (ties by PR number).
func ReviewCandidates(prs []schema.PullRequest, limit int) []schema.PullRequest {
	if limit <= 0 {
		return []schema.PullRequest{}
	}
	type sized struct {
		pr     schema.PullRequest
		length int
	}
	var items []sized
	for _, pr := range prs {
		if n := ReviewTextLength(pr); n > 0 {
			items = append(items, sized{pr: pr, length: n})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].length != items[j].length {
			return items[i].length > items[j].length
		}
		return items[i].pr.Number < items[j].pr.Number
	})

	out := make([]schema.PullRequest, 0, min(limit, len(items)))
	for i := 0; i < len(items) && i < limit; i++ {
		out = append(out, items[i].pr)
	}
	return out
}
