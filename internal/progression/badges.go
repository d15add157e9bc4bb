package progression

import (
	"github.com/terra-clan/psv-academy/internal/models"
)

// Badge identifiers
const (
	BadgeFirstAttempt      = "first_attempt"
	BadgePerfectScore      = "perfect_score"
	BadgeCompleteDatasheet = "complete_datasheet"
	BadgeDatasheetAce      = "datasheet_ace"
	BadgeHardModeHero      = "hard_mode_hero"
	BadgeSafetyFirst       = "safety_first"
	BadgeHardModeUnlocked  = "hard_mode_unlocked"
)

const (
	aceDatasheetQuality = 27
	aceAttempts         = 3
	highScore           = 85
)

// BadgeContext is the snapshot fed to badge predicates
type BadgeContext struct {
	Result *models.GradeResult
	// Prior is the profile before this attempt was applied
	Prior *models.Profile
	// History holds earlier attempts of the same learner, newest first
	History []models.AttemptRecord
	// HardModeUnlocked is true when this attempt completed the qualification streak
	HardModeUnlocked bool
}

// BadgeDef describes one badge and when it is earned
type BadgeDef struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Predicate   func(BadgeContext) bool
}

// DefaultBadges is the standard badge catalogue
func DefaultBadges() []BadgeDef {
	return []BadgeDef{
		{
			ID:          BadgeFirstAttempt,
			Name:        "First Relief",
			Description: "Submit your first sizing attempt",
			Icon:        "valve",
			Predicate: func(c BadgeContext) bool {
				return c.Prior.TotalAttempts() == 0
			},
		},
		{
			ID:          BadgePerfectScore,
			Name:        "Flawless Sizing",
			Description: "Score 100 on any scenario",
			Icon:        "star",
			Predicate: func(c BadgeContext) bool {
				return c.Result.Score == models.MaxScore
			},
		},
		{
			ID:          BadgeCompleteDatasheet,
			Name:        "By the Book",
			Description: "Submit a datasheet with every required field filled in",
			Icon:        "clipboard",
			Predicate: func(c BadgeContext) bool {
				return len(c.Result.MissingFields) == 0
			},
		},
		{
			ID:          BadgeDatasheetAce,
			Name:        "Datasheet Ace",
			Description: "Reach 27/30 datasheet quality on three attempts",
			Icon:        "document",
			Predicate: func(c BadgeContext) bool {
				if c.Result.Breakdown.DatasheetQuality < aceDatasheetQuality {
					return false
				}
				count := 1
				for _, a := range c.History {
					if a.Breakdown.DatasheetQuality >= aceDatasheetQuality {
						count++
					}
				}
				return count >= aceAttempts
			},
		},
		{
			ID:          BadgeHardModeHero,
			Name:        "Hard Mode Hero",
			Description: "Score 85 or more in hard mode",
			Icon:        "flame",
			Predicate: func(c BadgeContext) bool {
				return c.Result.Mode == models.ModeHard && c.Result.Score >= highScore
			},
		},
		{
			ID:          BadgeSafetyFirst,
			Name:        "Safety First",
			Description: "Score 85 or more without triggering a critical rule",
			Icon:        "shield",
			Predicate: func(c BadgeContext) bool {
				return c.Result.Score >= highScore && len(c.Result.CapsApplied) == 0
			},
		},
		{
			ID:          BadgeHardModeUnlocked,
			Name:        "Qualified",
			Description: "Unlock hard mode with three standard attempts scoring 85 or more",
			Icon:        "key",
			Predicate: func(c BadgeContext) bool {
				return c.HardModeUnlocked
			},
		},
	}
}
