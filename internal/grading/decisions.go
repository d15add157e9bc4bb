package grading

import (
	"fmt"
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

// Decision weights; they sum to the 45-point decision accuracy ceiling
const (
	relievingCaseWeight = 15
	valveStyleWeight    = 20
	orificeWeight       = 10
)

// Mistake tags used to look up catalogued common mistakes
const (
	tagRelievingCase = "relieving_case"
	tagValveStyle    = "valve_style"
	tagOrifice       = "orifice"
)

// DecisionReport is the output of the decision accuracy evaluator
type DecisionReport struct {
	Score    int
	Mistakes []string
}

type decision struct {
	tag     string
	label   string
	weight  int
	chosen  string
	correct string
}

// EvaluateDecisions compares the three categorical answers with the key (0-45)
func EvaluateDecisions(answers *models.PlayerAnswers, oc *models.Outcome) DecisionReport {
	report := DecisionReport{Mistakes: []string{}}
	decisions := []decision{
		{tagRelievingCase, "Relieving case", relievingCaseWeight, answers.RelievingCase, oc.CorrectRelievingCase},
		{tagValveStyle, "Valve style", valveStyleWeight, answers.ValveStyle, oc.CorrectValveStyle},
		{tagOrifice, "Orifice letter", orificeWeight, answers.OrificeLetter, oc.CorrectOrificeLetter},
	}

	for _, d := range decisions {
		if sameAnswer(d.chosen, d.correct) {
			report.Score += d.weight
			continue
		}
		report.Mistakes = append(report.Mistakes, mistakeMessage(oc.CommonMistakes, d))
	}

	report.Score = clamp(report.Score, models.MaxDecisionAccuracy)
	return report
}

func sameAnswer(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// keyTokens normalizes spaces and hyphens to the underscore used between key tokens
func keyTokens(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// mistakeMessage prefers a catalogued mistake naming both the tag and the chosen value
// as whole key tokens,
// then any catalogued mistake for the tag, then a synthesized message.
func mistakeMessage(catalog []models.CommonMistake, d decision) string {
	chosen := strings.ToLower(strings.TrimSpace(d.chosen))
	if chosen != "" {
		token := "_" + keyTokens(chosen) + "_"
		for _, m := range catalog {
			key := strings.ToLower(m.Key)
			if strings.Contains(key, d.tag) && strings.Contains("_"+keyTokens(key)+"_", token) {
				return m.Message
			}
		}
	}
	for _, m := range catalog {
		if strings.Contains(strings.ToLower(m.Key), d.tag) {
			return m.Message
		}
	}
	if chosen == "" {
		return fmt.Sprintf("%s: no answer given, expected %s", d.label, d.correct)
	}
	return fmt.Sprintf("%s: expected %s, got %s", d.label, d.correct, d.chosen)
}
