package models

import "strings"

// ServiceType is the fluid service a relief valve protects
type ServiceType string

const (
	ServiceGas      ServiceType = "gas"
	ServiceSteam    ServiceType = "steam"
	ServiceLiquid   ServiceType = "liquid"
	ServiceTwoPhase ServiceType = "two_phase"
)

// ParseServiceType normalizes s and reports whether it names a known service
func ParseServiceType(s string) (ServiceType, bool) {
	st := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ServiceGas, ServiceSteam, ServiceLiquid, ServiceTwoPhase:
		return st, true
	}
	return "", false
}

// IsVapor returns true for compressible services characterized by molecular weight and k
func (s ServiceType) IsVapor() bool {
	return s == ServiceGas || s == ServiceSteam
}

// Mode is the game mode an attempt is played in
type Mode string

const (
	ModePractice Mode = "practice"
	ModeStandard Mode = "standard"
	ModeHard     Mode = "hard"
)

// Normalize maps unknown or empty modes to standard
func (m Mode) Normalize() Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(m)))) {
	case ModePractice:
		return ModePractice
	case ModeHard:
		return ModeHard
	default:
		return ModeStandard
	}
}

// Relieving cases
const (
	CaseBlockedOutlet       = "blocked_outlet"
	CaseExternalFire        = "external_fire"
	CaseControlValveFailure = "control_valve_failure"
	CaseThermalExpansion    = "thermal_expansion"
	CaseTubeRupture         = "tube_rupture"
	CasePowerFailure        = "power_failure"
	CaseCoolingFailure      = "cooling_failure"
	CaseOther               = "other" // generic, unspecified cause
)

// Valve styles
const (
	StyleConventional    = "conventional"
	StyleBalancedBellows = "balanced_bellows"
	StylePilotOperated   = "pilot_operated"
)

// Discharge destinations
const (
	DischargeAtmosphere   = "atmosphere"
	DischargeFlare        = "flare"
	DischargeClosedSystem = "closed_system"
)

// OrificeLetters lists the standard orifice designations, smallest effective area first
var OrificeLetters = []string{"D", "E", "F", "G", "H", "J", "K", "L", "M", "N", "P", "Q", "R", "T"}

// OrificeIndex returns the size rank of letter, or -1 if it is not a standard designation
func OrificeIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for i, l := range OrificeLetters {
		if l == letter {
			return i
		}
	}
	return -1
}

// Scenario constraint tokens
const (
	ConstraintVariableBackpressure = "variable_backpressure"
	ConstraintRequiresBPAwareStyle = "requires_bp_aware_style"
	ConstraintFlameArrester        = "requires_flame_arrester"
	constraintForbidDischarge      = "forbid_discharge:"
)

// Track groups scenarios into a course section (e.g. "fundamentals")
type Track struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Order          int    `json:"order"`
	ScenariosCount int    `json:"scenariosCount"`
}

// Scenario is authored, immutable configuration for one scored exercise
type Scenario struct {
	ID                    string      `json:"id" yaml:"id"`
	TrackID               string      `json:"trackId,omitempty" yaml:"-"`
	Title                 string      `json:"title" yaml:"title"`
	Description           string      `json:"description,omitempty" yaml:"description"`
	ServiceType           ServiceType `json:"serviceType" yaml:"service_type"`
	Difficulty            int         `json:"difficulty" yaml:"difficulty"`
	Constraints           []string    `json:"constraints" yaml:"constraints"`
	DatasheetRequirements []string    `json:"datasheetRequirements" yaml:"datasheet_requirements"`
	BasePoints            int         `json:"basePoints" yaml:"base_points"`
	IsHardEligible        bool        `json:"isHardEligible" yaml:"is_hard_eligible"`
}

// HasConstraint reports whether the scenario declares the given constraint token
func (s *Scenario) HasConstraint(name string) bool {
	for _, c := range s.Constraints {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return true
		}
	}
	return false
}

// ForbidsDischargeTo reports whether a forbid_discharge constraint names dest
func (s *Scenario) ForbidsDischargeTo(dest string) bool {
	dest = strings.ToLower(strings.TrimSpace(dest))
	if dest == "" {
		return false
	}
	for _, c := range s.Constraints {
		c = strings.ToLower(strings.TrimSpace(c))
		if strings.HasPrefix(c, constraintForbidDischarge) && strings.TrimPrefix(c, constraintForbidDischarge) == dest {
			return true
		}
	}
	return false
}

// Requires reports whether field appears in the datasheet requirements
func (s *Scenario) Requires(field string) bool {
	for _, f := range s.DatasheetRequirements {
		if f == field {
			return true
		}
	}
	return false
}

// CommonMistake is a catalogued feedback message keyed by a mistake tag
type CommonMistake struct {
	Key     string `json:"key" yaml:"key"`
	Message string `json:"message" yaml:"message"`
}

// CriticalRule is a safety-relevant check that caps the score when violated
type CriticalRule struct {
	Key           string `json:"key" yaml:"key"`
	When          string `json:"when,omitempty" yaml:"when"`
	CapScoreAt    int    `json:"capScoreAt" yaml:"cap_score_at"`
	PenaltyPoints int    `json:"penaltyPoints" yaml:"penalty_points"`
	Message       string `json:"message" yaml:"message"`
}

// Outcome is the answer key paired 1:1 with a Scenario
type Outcome struct {
	ScenarioID                  string          `json:"scenarioId" yaml:"scenario_id"`
	CorrectRelievingCase        string          `json:"correctRelievingCase" yaml:"correct_relieving_case"`
	CorrectValveStyle           string          `json:"correctValveStyle" yaml:"correct_valve_style"`
	CorrectOrificeLetter        string          `json:"correctOrificeLetter" yaml:"correct_orifice_letter"`
	RequiredFieldsForFullCredit []string        `json:"requiredFieldsForFullCredit" yaml:"required_fields_for_full_credit"`
	CommonMistakes              []CommonMistake `json:"commonMistakes" yaml:"common_mistakes"`
	CriticalRules               []CriticalRule  `json:"criticalRules" yaml:"critical_rules"`
	ExplanationKeywords         []string        `json:"explanationKeywords,omitempty" yaml:"explanation_keywords"`
}
