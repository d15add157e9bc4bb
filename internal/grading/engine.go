package grading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

// ErrAnswerKeyMismatch is returned when the scenario and answer key do not belong together
var ErrAnswerKeyMismatch = errors.New("answer key does not match scenario")

// Input is one attempt together with the authored content it is graded against
type Input struct {
	Scenario        *models.Scenario
	Outcome         *models.Outcome
	Datasheet       models.Datasheet
	Answers         models.PlayerAnswers
	Mode            models.Mode
	ExplanationText string
	Telemetry       models.Telemetry
}

// Engine grades attempts. It holds no per-attempt state and is safe for concurrent use.
type Engine struct {
	bonusRules []BonusRule
}

type Option func(*Engine)

// WithBonusRules replaces the default bonus table
func WithBonusRules(rules []BonusRule) Option {
	return func(e *Engine) { e.bonusRules = rules }
}

// NewEngine creates an engine with the default bonus table
func NewEngine(opts ...Option) *Engine {
	e := &Engine{bonusRules: DefaultBonusRules()}
	for _, o := range opts {
		o(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Grade grades in with the default engine
func Grade(in Input) (*models.GradeResult, error) {
	return defaultEngine.Grade(in)
}

// Grade runs every evaluator and assembles the result
func (e *Engine) Grade(in Input) (*models.GradeResult, error) {
	if in.Scenario == nil || in.Outcome == nil {
		return nil, fmt.Errorf("%w: scenario and answer key are both required", ErrAnswerKeyMismatch)
	}
	if strings.TrimSpace(in.Scenario.ID) == "" || in.Scenario.ID != in.Outcome.ScenarioID {
		return nil, fmt.Errorf("%w: scenario %q, answer key %q", ErrAnswerKeyMismatch, in.Scenario.ID, in.Outcome.ScenarioID)
	}

	mode := in.Mode.Normalize()
	service := EffectiveServiceType(&in.Datasheet, in.Scenario)
	required := RequiredFields(in.Scenario, in.Outcome)

	sheet := ValidateDatasheet(&in.Datasheet, required, service, &in.Answers)
	decisions := EvaluateDecisions(&in.Answers, in.Outcome)
	discipline := EvaluateDiscipline(&in.Datasheet, &in.Answers, in.Telemetry, mode, len(sheet.MissingFields))
	explanation := EvaluateExplanation(in.ExplanationText, in.Outcome.ExplanationKeywords)
	rules := EvaluateCriticalRules(in.Outcome.CriticalRules, RuleInput{
		Scenario:  in.Scenario,
		Outcome:   in.Outcome,
		Datasheet: &in.Datasheet,
		Answers:   &in.Answers,
		Service:   service,
	}, mode)

	breakdown := models.ScoreBreakdown{
		DatasheetQuality: sheet.Score,
		DecisionAccuracy: decisions.Score,
		Discipline:       discipline.Score,
		Explanation:      explanation,
	}
	score := breakdown.Sum()
	if score > rules.LowestCap {
		score = rules.LowestCap
	}
	breakdown.Total = score

	points := CalculatePoints(e.bonusRules, PointsInput{
		Score:           score,
		BasePoints:      in.Scenario.BasePoints,
		Mode:            mode,
		Telemetry:       in.Telemetry,
		MissingCount:    len(sheet.MissingFields),
		CriticalFired:   rules.Fired(),
		CriticalPenalty: rules.Penalty,
	})

	return &models.GradeResult{
		ScenarioID:       in.Scenario.ID,
		Score:            score,
		PointsEarned:     points,
		CapsApplied:      rules.Caps,
		CriticalMistakes: rules.Messages,
		Breakdown:        breakdown,
		MissingFields:    sheet.MissingFields,
		DatasheetIssues:  sheet.Issues,
		Mistakes:         decisions.Mistakes,
		Bonuses:          discipline.Bonuses,
		Penalties:        discipline.Penalties,
		RemediationSteps: remediation(rules.Messages, sheet.MissingFields, decisions.Mistakes),
		CorrectAnswers: models.CorrectAnswers{
			RelievingCase: in.Outcome.CorrectRelievingCase,
			ValveStyle:    in.Outcome.CorrectValveStyle,
			OrificeLetter: in.Outcome.CorrectOrificeLetter,
		},
		Mode: mode,
	}, nil
}

func remediation(critical, missing, mistakes []string) []string {
	steps := []string{}
	if len(critical) > 0 {
		steps = append(steps, "Address the critical safety errors first; they cap your score regardless of other work")
	}
	if len(missing) > 0 {
		steps = append(steps, "Complete the missing datasheet fields: "+strings.Join(missing, ", "))
	}
	if len(mistakes) > 0 {
		steps = append(steps,
			"Review how the governing relieving case is selected for this scenario",
			"Revisit valve style selection against backpressure and orifice sizing tables",
		)
	}
	return append(steps,
		"Document the sizing basis and assumptions in the datasheet notes",
		"Verify set pressure and backpressure against the protected equipment and discharge system",
	)
}
