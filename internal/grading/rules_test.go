package grading

import (
	"testing"

	"github.com/terra-clan/psv-academy/internal/models"
)

func TestParseCondition(t *testing.T) {
	if got := ParseCondition(" requires-bp-aware-style "); got != ConditionRequiresBPAwareStyle {
		t.Errorf("expected ConditionRequiresBPAwareStyle, got %v", got)
	}
	if got := ParseCondition("SOMETHING_FROM_THE_FUTURE"); got != ConditionUnknown {
		t.Errorf("expected ConditionUnknown, got %v", got)
	}
	if ConditionUndersizedOrifice.String() != "UNDERSIZED_ORIFICE" {
		t.Errorf("unexpected name %q", ConditionUndersizedOrifice.String())
	}
}

func ruleInput(mutate func(*RuleInput)) RuleInput {
	ds := completeDatasheet()
	in := RuleInput{
		Scenario:  flareScenario(),
		Outcome:   flareOutcome(),
		Datasheet: &ds,
		Answers: &models.PlayerAnswers{
			RelievingCase: models.CaseBlockedOutlet,
			ValveStyle:    models.StyleBalancedBellows,
			OrificeLetter: "J",
		},
		Service: models.ServiceGas,
	}
	if mutate != nil {
		mutate(&in)
	}
	return in
}

func TestConditionTriggered(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		mutate    func(*RuleInput)
		want      bool
	}{
		{"unknown never fires", ConditionUnknown, nil, false},
		{"bp aware style satisfied", ConditionRequiresBPAwareStyle, nil, false},
		{"conventional on flare", ConditionRequiresBPAwareStyle, func(in *RuleInput) {
			in.Answers.ValveStyle = models.StyleConventional
		}, true},
		{"conventional with variable backpressure constraint", ConditionRequiresBPAwareStyle, func(in *RuleInput) {
			in.Answers.ValveStyle = models.StyleConventional
			in.Datasheet.DischargeTo = models.DischargeClosedSystem
		}, true},
		{"conventional with documented backpressure", ConditionConventionalInVariableBP, func(in *RuleInput) {
			in.Answers.ValveStyle = models.StyleConventional
		}, true},
		{"conventional with zero backpressure", ConditionConventionalInVariableBP, func(in *RuleInput) {
			in.Answers.ValveStyle = models.StyleConventional
			in.Datasheet.SuperimposedBackpressure = models.Float(0)
			in.Datasheet.BuiltUpBackpressure = models.Float(0)
		}, false},
		{"conventional with implied backpressure", ConditionConventionalInVariableBP, func(in *RuleInput) {
			in.Answers.ValveStyle = models.StyleConventional
			in.Datasheet.SuperimposedBackpressure = nil
			in.Datasheet.BuiltUpBackpressure = nil
		}, true},
		{"missing flare backpressure", ConditionMissingBackpressureFlare, func(in *RuleInput) {
			in.Datasheet.SuperimposedBackpressure = nil
			in.Datasheet.BuiltUpBackpressure = nil
		}, true},
		{"one flare backpressure documented", ConditionMissingBackpressureFlare, func(in *RuleInput) {
			in.Datasheet.SuperimposedBackpressure = nil
		}, false},
		{"wrong relieving case", ConditionWrongRelievingCase, func(in *RuleInput) {
			in.Answers.RelievingCase = models.CaseExternalFire
		}, true},
		{"liquid mass flow", ConditionLiquidMassFlow, func(in *RuleInput) {
			in.Service = models.ServiceLiquid
		}, true},
		{"gas mass flow", ConditionLiquidMassFlow, nil, false},
		{"undersized orifice", ConditionUndersizedOrifice, func(in *RuleInput) {
			in.Answers.OrificeLetter = "h"
		}, true},
		{"oversized orifice", ConditionUndersizedOrifice, func(in *RuleInput) {
			in.Answers.OrificeLetter = "K"
		}, false},
		{"unknown orifice letter", ConditionUndersizedOrifice, func(in *RuleInput) {
			in.Answers.OrificeLetter = "A"
		}, false},
		{"undersized orifice outside fire or blocked outlet", ConditionUndersizedOrifice, func(in *RuleInput) {
			in.Outcome.CorrectRelievingCase = models.CaseThermalExpansion
			in.Answers.OrificeLetter = "D"
		}, false},
		{"fire case to forbidden destination", ConditionFireCaseForbiddenDestination, func(in *RuleInput) {
			in.Scenario.Constraints = append(in.Scenario.Constraints, "forbid_discharge:flare")
			in.Answers.RelievingCase = models.CaseExternalFire
		}, true},
		{"non-fire case to forbidden destination", ConditionFireCaseForbiddenDestination, func(in *RuleInput) {
			in.Scenario.Constraints = append(in.Scenario.Constraints, "forbid_discharge:flare")
		}, false},
		{"atmosphere without flame arrester", ConditionAtmosphericNoFlameArrester, func(in *RuleInput) {
			in.Scenario.Constraints = []string{models.ConstraintFlameArrester}
			in.Datasheet.DischargeTo = "Atmosphere"
		}, true},
		{"missing vapor pressure", ConditionMissingVaporPressure, func(in *RuleInput) {
			in.Service = models.ServiceLiquid
			in.Scenario.DatasheetRequirements = []string{"vaporPressure"}
		}, true},
		{"vapor pressure not required", ConditionMissingVaporPressure, func(in *RuleInput) {
			in.Service = models.ServiceLiquid
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.condition.Triggered(ruleInput(tt.mutate)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateCriticalRules(t *testing.T) {
	rules := []models.CriticalRule{
		{Key: "WRONG_RELIEVING_CASE", CapScoreAt: 70, PenaltyPoints: 5, Message: "wrong case"},
		{Key: "bp", When: "REQUIRES_BP_AWARE_STYLE", CapScoreAt: 50, PenaltyPoints: 10, Message: "bp style"},
		{Key: "future", When: "NOT_YET_INVENTED", CapScoreAt: 1, PenaltyPoints: 100, Message: "never"},
	}
	in := ruleInput(func(in *RuleInput) {
		in.Answers.RelievingCase = models.CaseExternalFire
		in.Answers.ValveStyle = models.StyleConventional
	})

	report := EvaluateCriticalRules(rules, in, models.ModeStandard)
	if len(report.Caps) != 2 {
		t.Fatalf("expected 2 rules to fire, got %+v", report.Caps)
	}
	if report.LowestCap != 50 {
		t.Errorf("expected lowest cap 50, got %d", report.LowestCap)
	}
	if report.Penalty != 0 {
		t.Errorf("expected no penalty outside hard mode, got %d", report.Penalty)
	}

	report = EvaluateCriticalRules(rules, in, models.ModeHard)
	if report.Penalty != 15 {
		t.Errorf("expected hard mode penalty 15, got %d", report.Penalty)
	}

	report = EvaluateCriticalRules(rules, ruleInput(nil), models.ModeHard)
	if report.Fired() || report.LowestCap != models.MaxScore {
		t.Errorf("expected nothing to fire, got %+v", report)
	}
}
