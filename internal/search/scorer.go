package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vstream/video-platform-back/internal/domain"
)

// Scorer ranks a corpus snapshot against a query. Implementations must
// be pure: no mutation of the snapshot, results ordered by descending
// relevance, every score in [0,1].
type Scorer func(query string, corpus []*domain.Video) ([]domain.SearchResult, error)

// Weights of the lexical scorer. A full-phrase title hit dominates,
// word-level hits contribute fractionally.
const (
	titlePhraseWeight       = 0.7
	titleWordWeight         = 0.3
	descriptionPhraseWeight = 0.3
	descriptionWordWeight   = 0.1
	excerptRadius           = 30
)

// Score implements the default lexical ranking. An entry without an id
// is malformed and aborts the whole run: partial results would silently
// hide corpus corruption.
func Score(query string, corpus []*domain.Video) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	results := make([]domain.SearchResult, 0)
	for _, video := range corpus {
		if video == nil || strings.TrimSpace(video.ID) == "" {
			return nil, fmt.Errorf("malformed corpus entry: missing video id (title=%q)", videoTitle(video))
		}

		score := 0.0
		matched := make([]string, 0, 2)

		titleLower := strings.ToLower(video.Title)
		if strings.Contains(titleLower, queryLower) {
			score += titlePhraseWeight
			matched = append(matched, video.Title)
		} else {
			for _, word := range queryWords {
				if strings.Contains(titleLower, word) {
					score += titleWordWeight / float64(len(queryWords))
					matched = append(matched, video.Title)
				}
			}
		}

		descriptionLower := strings.ToLower(video.Description)
		if idx := strings.Index(descriptionLower, queryLower); idx >= 0 {
			score += descriptionPhraseWeight
			matched = append(matched, excerpt(video.Description, idx, len(queryLower)))
		} else {
			for _, word := range queryWords {
				if strings.Contains(descriptionLower, word) {
					score += descriptionWordWeight / float64(len(queryWords))
				}
			}
		}

		if score <= 0 {
			continue
		}

		matchedText := video.Title
		if len(matched) > 0 {
			matchedText = matched[0]
		}
		results = append(results, domain.SearchResult{
			VideoID:        video.ID,
			Title:          video.Title,
			RelevanceScore: roundScore(math.Min(score, 1.0)),
			MatchedText:    matchedText,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results, nil
}

func excerpt(text string, index, matchLen int) string {
	start := index - excerptRadius
	if start < 0 {
		start = 0
	}
	end := index + matchLen + excerptRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func roundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

func videoTitle(video *domain.Video) string {
	if video == nil {
		return ""
	}
	return video.Title
}
