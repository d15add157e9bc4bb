package grading

import (
	"math"

	"github.com/terra-clan/psv-academy/internal/models"
)

const highScoreThreshold = 85

// PointsInput carries what the calculator needs from the rest of the grading pass
type PointsInput struct {
	Score           int
	BasePoints      int
	Mode            models.Mode
	Telemetry       models.Telemetry
	MissingCount    int
	CriticalFired   bool
	CriticalPenalty int
}

// BonusRule adds Increment to the bonus multiplier when Applies holds
type BonusRule struct {
	Name      string
	Increment float64
	Applies   func(in PointsInput) bool
}

// DefaultBonusRules is the standard bonus table
func DefaultBonusRules() []BonusRule {
	return []BonusRule{
		{
			Name:      "hard_no_hints",
			Increment: 0.20,
			Applies: func(in PointsInput) bool {
				return in.Mode == models.ModeHard && in.Telemetry.HintsUsed == 0
			},
		},
		{
			Name:      "first_attempt_high_score",
			Increment: 0.15,
			Applies: func(in PointsInput) bool {
				return in.Telemetry.IsFirstAttempt() && in.Score >= highScoreThreshold
			},
		},
		{
			Name:      "complete_datasheet",
			Increment: 0.10,
			Applies: func(in PointsInput) bool {
				return in.MissingCount == 0
			},
		},
	}
}

// ModeMultiplier scales base points by game mode
func ModeMultiplier(mode models.Mode) float64 {
	switch mode.Normalize() {
	case models.ModePractice:
		return 0.75
	case models.ModeHard:
		return 2.0
	default:
		return 1.0
	}
}

// BonusMultiplier folds the rules over in, starting at 1.0
func BonusMultiplier(rules []BonusRule, in PointsInput) float64 {
	m := 1.0
	for _, r := range rules {
		if r.Applies != nil && r.Applies(in) {
			m += r.Increment
		}
	}
	return m
}

// CalculatePoints converts the final score into awarded points. The result is never negative.
func CalculatePoints(rules []BonusRule, in PointsInput) int {
	base := float64(in.BasePoints) * float64(in.Score) / 100 * ModeMultiplier(in.Mode)
	points := int(math.Round(base * BonusMultiplier(rules, in)))

	if in.Mode == models.ModeHard && in.CriticalFired {
		points -= in.CriticalPenalty
	}
	if points < 0 {
		return 0
	}
	return points
}
