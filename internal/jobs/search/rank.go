package search

import (
	"log/slog"
	"strings"
	"unicode"

	"releasekit/internal/identification/tmdb"
	"releasekit/internal/logging"
	"releasekit/internal/textutil"
)

// minSimilarity is the lowest title similarity accepted without an exact
// normalized match.
const minSimilarity = 0.5

// bestMatch scores each result by title similarity, year agreement and
// popularity, and returns nil when nothing is close enough.
func bestMatch(logger *slog.Logger, q Query, results []tmdb.Result) *tmdb.Result {
	queryFP := textutil.NewFingerprint(q.Title)
	queryNormalized := normalizeForComparison(q.Title)

	var best *tmdb.Result
	bestScore := -1.0
	for idx := range results {
		res := results[idx]
		title := res.DisplayTitle()
		exact := queryNormalized != "" && normalizeForComparison(title) == queryNormalized
		similarity := textutil.CosineSimilarity(queryFP, textutil.NewFingerprint(title))
		if !exact && similarity < minSimilarity {
			continue
		}
		score := similarity * 2
		if exact {
			score++
		}
		if q.Year > 0 {
			switch diff := res.Year() - q.Year; {
			case diff == 0:
				score += 0.5
			case diff == 1 || diff == -1:
				score += 0.2
			default:
				score -= 0.5
			}
		}
		score += res.VoteAverage/10.0 + min(float64(res.VoteCount)/1000.0, 1)

		logger.Debug("scored search result",
			logging.Int64("tmdb_id", res.ID),
			logging.String("title", title),
			logging.Int("year", res.Year()),
			logging.Bool("exact_title_match", exact),
			logging.Float64("similarity", similarity),
			logging.Float64("score", score))
		if score > bestScore {
			best = &results[idx]
			bestScore = score
		}
	}
	return best
}

func normalizeForComparison(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	normalized := strings.ToLower(input)
	normalized = strings.ReplaceAll(normalized, "&", "and")
	normalized = strings.ReplaceAll(normalized, "+", "and")

	var builder strings.Builder
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
