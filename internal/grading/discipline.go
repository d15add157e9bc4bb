package grading

import (
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

const (
	attachmentsPenalty  = 2
	hintPenalty         = 3
	hardHintPenalty     = 5
	maxMissingPenalty   = 5
	notesPenalty        = 2
	preparerPenalty     = 1
	riskyPatternPenalty = 3

	minNotesLength = 10
)

// DisciplineReport is the output of the discipline evaluator
type DisciplineReport struct {
	Score     int
	Bonuses   []string
	Penalties []string
}

// EvaluateDiscipline scores process habits (0-15). The risky flare pattern is penalized here
// even when a critical rule also fires for it.
func EvaluateDiscipline(ds *models.Datasheet, answers *models.PlayerAnswers, tel models.Telemetry, mode models.Mode, missingCount int) DisciplineReport {
	report := DisciplineReport{Bonuses: []string{}, Penalties: []string{}}
	score := models.MaxDiscipline

	if tel.AttachmentsOpened {
		report.Bonuses = append(report.Bonuses, "Reviewed reference attachments")
	} else {
		score -= attachmentsPenalty
		report.Penalties = append(report.Penalties, "Reference attachments were never opened")
	}

	if tel.HintsUsed > 0 {
		penalty := hintPenalty
		if mode == models.ModeHard {
			penalty = hardHintPenalty
		}
		score -= penalty
		report.Penalties = append(report.Penalties, "Hints were used")
	} else {
		report.Bonuses = append(report.Bonuses, "Solved without hints")
	}

	if missingCount > 0 {
		penalty := missingCount
		if penalty > maxMissingPenalty {
			penalty = maxMissingPenalty
		}
		score -= penalty
		report.Penalties = append(report.Penalties, "Required datasheet fields left blank")
	} else {
		report.Bonuses = append(report.Bonuses, "All required fields completed")
	}

	if len([]rune(strings.TrimSpace(ds.Notes))) < minNotesLength {
		score -= notesPenalty
		report.Penalties = append(report.Penalties, "Datasheet notes missing or too brief")
	} else {
		report.Bonuses = append(report.Bonuses, "Documented basis in notes")
	}

	if strings.TrimSpace(ds.PreparedBy) == "" {
		score -= preparerPenalty
		report.Penalties = append(report.Penalties, "Preparer name not recorded")
	}

	if riskyFlarePattern(ds, answers) {
		score -= riskyPatternPenalty
		report.Penalties = append(report.Penalties, "Conventional valve to flare with no backpressure documented")
	}

	report.Score = clamp(score, models.MaxDiscipline)
	return report
}

// riskyFlarePattern: flare discharge, no backpressure documented, conventional valve chosen
func riskyFlarePattern(ds *models.Datasheet, answers *models.PlayerAnswers) bool {
	return ds.DischargesTo(models.DischargeFlare) &&
		!ds.HasBackpressure() &&
		sameAnswer(answers.ValveStyle, models.StyleConventional)
}
