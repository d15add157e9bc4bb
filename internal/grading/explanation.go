package grading

import (
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

const (
	pointsPerKeyword    = 2
	effortCharsPerPoint = 50
	maxEffortPoints     = 4
)

// EvaluateExplanation scores the free-text rationale by keyword coverage (0-10).
// Without authored keywords it falls back to a length-based effort proxy capped at 4.
func EvaluateExplanation(text string, keywords []string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	authored := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			authored = append(authored, k)
		}
	}

	if len(authored) == 0 {
		points := len([]rune(text)) / effortCharsPerPoint
		if points > maxEffortPoints {
			points = maxEffortPoints
		}
		return points
	}

	lower := strings.ToLower(text)
	matched := make(map[string]struct{})
	for _, k := range authored {
		if strings.Contains(lower, k) {
			matched[k] = struct{}{}
		}
	}
	return clamp(len(matched)*pointsPerKeyword, models.MaxExplanation)
}
