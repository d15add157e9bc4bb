package models

import "math"

// Component ceilings of the canonical breakdown
const (
	MaxDatasheetQuality = 30
	MaxDecisionAccuracy = 45
	MaxDiscipline       = 15
	MaxExplanation      = 10
	MaxScore            = 100
)

// ScoreBreakdown is the canonical four-component score
type ScoreBreakdown struct {
	DatasheetQuality int `json:"datasheetQuality"`
	DecisionAccuracy int `json:"decisionAccuracy"`
	Discipline       int `json:"discipline"`
	Explanation      int `json:"explanation"`
	Total            int `json:"total"`
}

// Sum returns the uncapped sum of the components
func (b ScoreBreakdown) Sum() int {
	return b.DatasheetQuality + b.DecisionAccuracy + b.Discipline + b.Explanation
}

// LegacyBreakdown is the older 40/50/10 shape still read by some consumers
type LegacyBreakdown struct {
	Datasheet  int `json:"datasheet"`
	Decisions  int `json:"decisions"`
	Discipline int `json:"discipline"`
	Total      int `json:"total"`
}

// Legacy projects the canonical breakdown onto the 40/50/10 shape.
// Discipline and explanation fold into the 10-point bucket. Total is carried over unchanged.
func (b ScoreBreakdown) Legacy() LegacyBreakdown {
	scale := func(v, from, to int) int {
		return int(math.Round(float64(v) * float64(to) / float64(from)))
	}
	return LegacyBreakdown{
		Datasheet:  scale(b.DatasheetQuality, MaxDatasheetQuality, 40),
		Decisions:  scale(b.DecisionAccuracy, MaxDecisionAccuracy, 50),
		Discipline: scale(b.Discipline+b.Explanation, MaxDiscipline+MaxExplanation, 10),
		Total:      b.Total,
	}
}

// AppliedCap records a critical rule that fired
type AppliedCap struct {
	RuleKey       string `json:"ruleKey"`
	CapScoreAt    int    `json:"capScoreAt"`
	PenaltyPoints int    `json:"penaltyPoints"`
	Message       string `json:"message"`
}

// CorrectAnswers echoes the answer key for feedback display
type CorrectAnswers struct {
	RelievingCase string `json:"relievingCase"`
	ValveStyle    string `json:"valveStyle"`
	OrificeLetter string `json:"orificeLetter"`
}

// GradeResult is the immutable output of grading one attempt
type GradeResult struct {
	ScenarioID       string         `json:"scenarioId"`
	Score            int            `json:"score"`
	PointsEarned     int            `json:"pointsEarned"`
	CapsApplied      []AppliedCap   `json:"capsApplied"`
	CriticalMistakes []string       `json:"criticalMistakes"`
	Breakdown        ScoreBreakdown `json:"breakdown"`
	MissingFields    []string       `json:"missingFields"`
	DatasheetIssues  []string       `json:"datasheetIssues"`
	Mistakes         []string       `json:"mistakes"`
	Bonuses          []string       `json:"bonuses"`
	Penalties        []string       `json:"penalties"`
	RemediationSteps []string       `json:"remediationSteps"`
	CorrectAnswers   CorrectAnswers `json:"correctAnswers"`
	Mode             Mode           `json:"mode"`
}

// LegacyGradeResult is GradeResult with the breakdown projected onto the legacy shape
type LegacyGradeResult struct {
	GradeResult
	Breakdown LegacyBreakdown `json:"breakdown"`
}

// LegacyView wraps the result for consumers of the legacy breakdown
func (r GradeResult) LegacyView() LegacyGradeResult {
	return LegacyGradeResult{GradeResult: r, Breakdown: r.Breakdown.Legacy()}
}
