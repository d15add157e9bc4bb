package grading

import (
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

// Condition is a named safety check a critical rule can reference
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionConventionalInVariableBP
	ConditionRequiresBPAwareStyle
	ConditionMissingBackpressureFlare
	ConditionWrongRelievingCase
	ConditionLiquidMassFlow
	ConditionUndersizedOrifice
	ConditionFireCaseForbiddenDestination
	ConditionAtmosphericNoFlameArrester
	ConditionMissingVaporPressure
)

var conditionNames = map[string]Condition{
	"CONVENTIONAL_IN_VARIABLE_BP":     ConditionConventionalInVariableBP,
	"REQUIRES_BP_AWARE_STYLE":         ConditionRequiresBPAwareStyle,
	"MISSING_BACKPRESSURE_FLARE":      ConditionMissingBackpressureFlare,
	"WRONG_RELIEVING_CASE":            ConditionWrongRelievingCase,
	"LIQUID_MASS_FLOW":                ConditionLiquidMassFlow,
	"UNDERSIZED_ORIFICE":              ConditionUndersizedOrifice,
	"FIRE_CASE_FORBIDDEN_DESTINATION": ConditionFireCaseForbiddenDestination,
	"ATMOSPHERIC_NO_FLAME_ARRESTER":   ConditionAtmosphericNoFlameArrester,
	"MISSING_VAPOR_PRESSURE":          ConditionMissingVaporPressure,
}

// ParseCondition maps a condition name to its enum value. Unrecognized names yield ConditionUnknown.
func ParseCondition(name string) Condition {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	if c, ok := conditionNames[name]; ok {
		return c
	}
	return ConditionUnknown
}

// String returns the canonical condition name
func (c Condition) String() string {
	for name, v := range conditionNames {
		if v == c {
			return name
		}
	}
	return "UNKNOWN"
}

// RuleInput is everything a condition predicate may inspect
type RuleInput struct {
	Scenario  *models.Scenario
	Outcome   *models.Outcome
	Datasheet *models.Datasheet
	Answers   *models.PlayerAnswers
	Service   models.ServiceType
}

// Triggered evaluates the condition against in
func (c Condition) Triggered(in RuleInput) bool {
	ds, ans := in.Datasheet, in.Answers
	conventional := sameAnswer(ans.ValveStyle, models.StyleConventional)
	flare := ds.DischargesTo(models.DischargeFlare)

	switch c {
	case ConditionConventionalInVariableBP:
		return flare && conventional && (!ds.HasBackpressure() || positive(ds.SuperimposedBackpressure) || positive(ds.BuiltUpBackpressure))
	case ConditionRequiresBPAwareStyle:
		return conventional && (flare ||
			in.Scenario.HasConstraint(models.ConstraintVariableBackpressure) ||
			in.Scenario.HasConstraint(models.ConstraintRequiresBPAwareStyle))
	case ConditionMissingBackpressureFlare:
		return flare && !ds.HasBackpressure()
	case ConditionWrongRelievingCase:
		return !sameAnswer(ans.RelievingCase, in.Outcome.CorrectRelievingCase)
	case ConditionLiquidMassFlow:
		return in.Service == models.ServiceLiquid && ds.MassFlow != nil && ds.VolumetricFlow == nil
	case ConditionUndersizedOrifice:
		key := in.Outcome.CorrectRelievingCase
		if !sameAnswer(key, models.CaseExternalFire) && !sameAnswer(key, models.CaseBlockedOutlet) {
			return false
		}
		chosen := models.OrificeIndex(ans.OrificeLetter)
		correct := models.OrificeIndex(in.Outcome.CorrectOrificeLetter)
		return chosen >= 0 && correct >= 0 && chosen < correct
	case ConditionFireCaseForbiddenDestination:
		fire := sameAnswer(in.Outcome.CorrectRelievingCase, models.CaseExternalFire) ||
			sameAnswer(ans.RelievingCase, models.CaseExternalFire)
		return fire && in.Scenario.ForbidsDischargeTo(ds.DischargeTo)
	case ConditionAtmosphericNoFlameArrester:
		return ds.DischargesTo(models.DischargeAtmosphere) && in.Scenario.HasConstraint(models.ConstraintFlameArrester)
	case ConditionMissingVaporPressure:
		return in.Service == models.ServiceLiquid && in.Scenario.Requires("vaporPressure") && ds.VaporPressure == nil
	default:
		return false
	}
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

// RuleReport is the output of the critical rule engine
type RuleReport struct {
	Messages []string
	Caps     []models.AppliedCap
	// LowestCap is MaxScore when nothing fired
	LowestCap int
	// Penalty is summed only in hard mode
	Penalty int
}

// Fired reports whether any critical rule triggered
func (r RuleReport) Fired() bool {
	return len(r.Caps) > 0
}

// ruleCondition resolves the rule's condition from When, falling back to Key
func ruleCondition(rule models.CriticalRule) Condition {
	if strings.TrimSpace(rule.When) != "" {
		return ParseCondition(rule.When)
	}
	return ParseCondition(rule.Key)
}

// EvaluateCriticalRules runs every authored rule; the most restrictive cap wins
func EvaluateCriticalRules(rules []models.CriticalRule, in RuleInput, mode models.Mode) RuleReport {
	report := RuleReport{
		Messages:  []string{},
		Caps:      []models.AppliedCap{},
		LowestCap: models.MaxScore,
	}

	for _, rule := range rules {
		if !ruleCondition(rule).Triggered(in) {
			continue
		}
		report.Messages = append(report.Messages, rule.Message)
		report.Caps = append(report.Caps, models.AppliedCap{
			RuleKey:       rule.Key,
			CapScoreAt:    rule.CapScoreAt,
			PenaltyPoints: rule.PenaltyPoints,
			Message:       rule.Message,
		})
		if rule.CapScoreAt < report.LowestCap {
			report.LowestCap = rule.CapScoreAt
		}
		if mode == models.ModeHard {
			report.Penalty += rule.PenaltyPoints
		}
	}

	if report.LowestCap < 0 {
		report.LowestCap = 0
	}
	return report
}
