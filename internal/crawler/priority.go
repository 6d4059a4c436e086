package crawler

import (
	"context"
	"math"
	"strings"

	"github.com/nao1215/webspider/internal/frontier"
)

// priorityHints adjust the priority of a discovered link whose lowercased
// URL contains any of the keywords. Every matching group applies once.
var priorityHints = []struct {
	keywords []string
	delta    int
}{
	{[]string{"important", "main", "index"}, 2},
	{[]string{"about", "contact", "help"}, 1},
	{[]string{"archive", "old"}, -1},
	{[]string{"admin", "login"}, -3},
}

// discoveredPriority rates a link found on parent. It starts one below the
// parent, applies the URL keyword hints and the scorer adjustment, and
// clamps the result to the frontier range.
func discoveredPriority(ctx context.Context, link string, parent *frontier.Entry, scorer Scorer) int {
	p := parent.Priority - 1

	lower := strings.ToLower(link)
	for _, hint := range priorityHints {
		for _, kw := range hint.keywords {
			if strings.Contains(lower, kw) {
				p += hint.delta
				break
			}
		}
	}

	if scorer != nil {
		p += scoreAdjustment(scorer.Score(ctx, link, parent.URL))
	}

	return max(frontier.MinPriority, min(frontier.MaxPriority, p))
}

// scoreAdjustment maps a score in [0, 1] to -2..+2.
func scoreAdjustment(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	score = max(0, min(1, score))
	return int(math.Round((score - 0.5) * 4))
}
