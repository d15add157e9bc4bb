package grading

import (
	"strings"
	"testing"

	"github.com/terra-clan/psv-academy/internal/models"
)

func TestRequiredFieldsMergesAndDedupes(t *testing.T) {
	sc := &models.Scenario{DatasheetRequirements: []string{"setPressure", "massFlow"}}
	oc := &models.Outcome{RequiredFieldsForFullCredit: []string{"massFlow", "notes", " "}}

	got := RequiredFields(sc, oc)
	want := []string{"setPressure", "massFlow", "notes"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestValidateDatasheetLiquidMassFlow(t *testing.T) {
	ds := &models.Datasheet{
		ServiceType:     "liquid",
		SetPressure:     models.Float(100),
		MassFlow:        models.Float(5000),
		SpecificGravity: models.Float(0.82),
	}

	report := ValidateDatasheet(ds, []string{"setPressure", "massFlow"}, models.ServiceLiquid, &models.PlayerAnswers{})
	if report.Score > 27 {
		t.Errorf("expected at least the 3-point deduction, got score %d", report.Score)
	}
	found := false
	for _, issue := range report.Issues {
		if strings.Contains(issue, "volumetric flow") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an issue mentioning volumetric flow, got %v", report.Issues)
	}
}

func TestValidateDatasheetDeductions(t *testing.T) {
	gas := func() *models.Datasheet {
		return &models.Datasheet{MolecularWeight: models.Float(28), SpecificHeatRatio: models.Float(1.4)}
	}

	tests := []struct {
		name     string
		ds       *models.Datasheet
		required []string
		service  models.ServiceType
		answers  models.PlayerAnswers
		want     int
	}{
		{
			name:    "complete gas sheet",
			ds:      gas(),
			service: models.ServiceGas,
			want:    30,
		},
		{
			name: "flare backpressure compounds",
			ds: func() *models.Datasheet {
				ds := gas()
				ds.DischargeTo = "Flare"
				return ds
			}(),
			service: models.ServiceGas,
			want:    26,
		},
		{
			name:     "half of required fields missing",
			ds:       gas(),
			required: []string{"setPressure", "relievingTemperature", "molecularWeight", "specificHeatRatio"},
			service:  models.ServiceGas,
			want:     20,
		},
		{
			name:     "missing deduction is capped at 15",
			ds:       &models.Datasheet{},
			required: []string{"setPressure", "relievingTemperature", "molecularWeight", "specificHeatRatio"},
			service:  models.ServiceSteam,
			want:     11,
		},
		{
			name: "implausible set pressure and temperature",
			ds: func() *models.Datasheet {
				ds := gas()
				ds.SetPressure = models.Float(-5)
				ds.RelievingTemperature = models.Float(2000)
				return ds
			}(),
			service: models.ServiceGas,
			want:    25,
		},
		{
			name:    "generic relieving case",
			ds:      gas(),
			service: models.ServiceGas,
			answers: models.PlayerAnswers{RelievingCase: "Other"},
			want:    28,
		},
		{
			name:    "liquid without specific gravity",
			ds:      &models.Datasheet{VolumetricFlow: models.Float(120)},
			service: models.ServiceLiquid,
			want:    27,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ValidateDatasheet(tt.ds, tt.required, tt.service, &tt.answers)
			if report.Score != tt.want {
				t.Errorf("expected score %d, got %d (issues %v)", tt.want, report.Score, report.Issues)
			}
		})
	}
}

func TestEffectiveServiceTypeFallsBackToScenario(t *testing.T) {
	sc := &models.Scenario{ServiceType: models.ServiceSteam}
	if got := EffectiveServiceType(&models.Datasheet{}, sc); got != models.ServiceSteam {
		t.Errorf("expected steam, got %s", got)
	}
	if got := EffectiveServiceType(&models.Datasheet{ServiceType: " LIQUID "}, sc); got != models.ServiceLiquid {
		t.Errorf("expected liquid, got %s", got)
	}
}

func TestEvaluateDecisionsMistakeLookup(t *testing.T) {
	oc := flareOutcome()

	report := EvaluateDecisions(&models.PlayerAnswers{
		RelievingCase: "BLOCKED_OUTLET ",
		ValveStyle:    models.StylePilotOperated,
		OrificeLetter: "G",
	}, oc)

	if report.Score != relievingCaseWeight {
		t.Errorf("expected score %d, got %d", relievingCaseWeight, report.Score)
	}
	if len(report.Mistakes) != 2 {
		t.Fatalf("expected 2 mistakes, got %v", report.Mistakes)
	}
	if report.Mistakes[0] != "Conventional valves lose capacity under variable backpressure" {
		t.Errorf("expected first tag match, got %q", report.Mistakes[0])
	}
	if !strings.Contains(report.Mistakes[1], "expected J") {
		t.Errorf("expected synthesized orifice message, got %q", report.Mistakes[1])
	}
}

func TestEvaluateDecisionsMatchesChosenValueAsToken(t *testing.T) {
	oc := flareOutcome()
	oc.CommonMistakes = []models.CommonMistake{
		{Key: "orifice_too_large", Message: "oversized"},
		{Key: "orifice_e_too_small", Message: "E cannot pass the load"},
		{Key: "valve_style_pilot_operated", Message: "pilot"},
	}

	report := EvaluateDecisions(&models.PlayerAnswers{
		RelievingCase: models.CaseBlockedOutlet,
		ValveStyle:    models.StylePilotOperated,
		OrificeLetter: "e",
	}, oc)

	if len(report.Mistakes) != 2 {
		t.Fatalf("expected 2 mistakes, got %v", report.Mistakes)
	}
	if report.Mistakes[0] != "pilot" {
		t.Errorf("expected multi-token value match, got %q", report.Mistakes[0])
	}
	if report.Mistakes[1] != "E cannot pass the load" {
		t.Errorf("expected letter-specific message, got %q", report.Mistakes[1])
	}

	report = EvaluateDecisions(&models.PlayerAnswers{
		RelievingCase: models.CaseBlockedOutlet,
		ValveStyle:    models.StyleBalancedBellows,
		OrificeLetter: "K",
	}, oc)
	if len(report.Mistakes) != 1 || report.Mistakes[0] != "oversized" {
		t.Errorf("expected tag fallback for an uncatalogued letter, got %v", report.Mistakes)
	}
}

func TestEvaluateDiscipline(t *testing.T) {
	sloppy := &models.Datasheet{DischargeTo: models.DischargeFlare, Notes: "short"}
	answers := &models.PlayerAnswers{ValveStyle: models.StyleConventional}

	report := EvaluateDiscipline(sloppy, answers, models.Telemetry{HintsUsed: 2}, models.ModeHard, 7)
	// 15 - 2 attachments - 5 hints - 5 missing - 2 notes - 1 preparer - 3 risky
	if report.Score != 0 {
		t.Errorf("expected score floored at 0, got %d", report.Score)
	}
	if len(report.Penalties) != 6 {
		t.Errorf("expected 6 penalties, got %v", report.Penalties)
	}

	report = EvaluateDiscipline(sloppy, answers, models.Telemetry{HintsUsed: 1, AttachmentsOpened: true}, models.ModeStandard, 0)
	// 15 - 3 hints - 2 notes - 1 preparer - 3 risky
	if report.Score != 6 {
		t.Errorf("expected score 6, got %d", report.Score)
	}
}

func TestEvaluateExplanation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     int
	}{
		{"blank", "   ", []string{"fire"}, 0},
		{"effort proxy", strings.Repeat("a", 120), nil, 2},
		{"effort proxy capped", strings.Repeat("a", 900), nil, 4},
		{"distinct keywords", "Fire case, FIRE case, wetted area", []string{"fire", "Fire", "wetted area", "latent heat"}, 4},
		{"keyword cap", "a b c d e f", []string{"a", "b", "c", "d", "e", "f"}, 10},
		{"blank keywords use effort proxy", strings.Repeat("a", 120), []string{"", "  "}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateExplanation(tt.text, tt.keywords); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
