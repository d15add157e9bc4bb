package models

import "strings"

// Datasheet is the learner's sparse technical form. Nil pointers and blank strings are "absent".
type Datasheet struct {
	ServiceType              string   `json:"serviceType,omitempty"`
	Tag                      string   `json:"tag,omitempty"`
	Fluid                    string   `json:"fluid,omitempty"`
	SetPressure              *float64 `json:"setPressure,omitempty"`
	RelievingTemperature     *float64 `json:"relievingTemperature,omitempty"`
	MolecularWeight          *float64 `json:"molecularWeight,omitempty"`
	SpecificHeatRatio        *float64 `json:"specificHeatRatio,omitempty"`
	Compressibility          *float64 `json:"compressibility,omitempty"`
	SpecificGravity          *float64 `json:"specificGravity,omitempty"`
	Viscosity                *float64 `json:"viscosity,omitempty"`
	VaporPressure            *float64 `json:"vaporPressure,omitempty"`
	MassFlow                 *float64 `json:"massFlow,omitempty"`
	VolumetricFlow           *float64 `json:"volumetricFlow,omitempty"`
	Overpressure             *float64 `json:"overpressure,omitempty"`
	SuperimposedBackpressure *float64 `json:"superimposedBackpressure,omitempty"`
	BuiltUpBackpressure      *float64 `json:"builtUpBackpressure,omitempty"`
	DischargeTo              string   `json:"dischargeTo,omitempty"`
	Notes                    string   `json:"notes,omitempty"`
	PreparedBy               string   `json:"preparedBy,omitempty"`
}

// Has reports whether the named field (its JSON name) carries a value.
// Unknown names are never present.
func (d *Datasheet) Has(field string) bool {
	if d == nil {
		return false
	}
	switch field {
	case "serviceType":
		return notBlank(d.ServiceType)
	case "tag":
		return notBlank(d.Tag)
	case "fluid":
		return notBlank(d.Fluid)
	case "setPressure":
		return d.SetPressure != nil
	case "relievingTemperature":
		return d.RelievingTemperature != nil
	case "molecularWeight":
		return d.MolecularWeight != nil
	case "specificHeatRatio":
		return d.SpecificHeatRatio != nil
	case "compressibility":
		return d.Compressibility != nil
	case "specificGravity":
		return d.SpecificGravity != nil
	case "viscosity":
		return d.Viscosity != nil
	case "vaporPressure":
		return d.VaporPressure != nil
	case "massFlow":
		return d.MassFlow != nil
	case "volumetricFlow":
		return d.VolumetricFlow != nil
	case "overpressure":
		return d.Overpressure != nil
	case "superimposedBackpressure":
		return d.SuperimposedBackpressure != nil
	case "builtUpBackpressure":
		return d.BuiltUpBackpressure != nil
	case "dischargeTo":
		return notBlank(d.DischargeTo)
	case "notes":
		return notBlank(d.Notes)
	case "preparedBy":
		return notBlank(d.PreparedBy)
	}
	return false
}

// DatasheetFields lists the field names Has understands
var DatasheetFields = []string{
	"serviceType", "tag", "fluid", "setPressure", "relievingTemperature", "molecularWeight",
	"specificHeatRatio", "compressibility", "specificGravity", "viscosity", "vaporPressure",
	"massFlow", "volumetricFlow", "overpressure", "superimposedBackpressure", "builtUpBackpressure",
	"dischargeTo", "notes", "preparedBy",
}

// IsDatasheetField reports whether name is a known datasheet field
func IsDatasheetField(name string) bool {
	for _, f := range DatasheetFields {
		if f == name {
			return true
		}
	}
	return false
}

// DischargesTo compares the discharge destination case-insensitively
func (d *Datasheet) DischargesTo(dest string) bool {
	return strings.EqualFold(strings.TrimSpace(d.DischargeTo), dest)
}

// HasBackpressure reports whether either backpressure figure is documented
func (d *Datasheet) HasBackpressure() bool {
	return d.SuperimposedBackpressure != nil || d.BuiltUpBackpressure != nil
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Float returns a pointer to v; convenient for building datasheets in code
func Float(v float64) *float64 {
	return &v
}

// PlayerAnswers are the three categorical decisions of one attempt
type PlayerAnswers struct {
	RelievingCase string `json:"relievingCase"`
	ValveStyle    string `json:"valveStyle"`
	OrificeLetter string `json:"orificeLetter"`
}

// Telemetry carries per-attempt behavioral signals supplied by the caller
type Telemetry struct {
	HintsUsed         int  `json:"hintsUsed"`
	AttachmentsOpened bool `json:"attachmentsOpened"`
	AttemptNumber     int  `json:"attemptNumber"`
}

// IsFirstAttempt treats an unknown (zero) ordinal as the first attempt
func (t Telemetry) IsFirstAttempt() bool {
	return t.AttemptNumber <= 1
}

// GradeRequest is the per-attempt submission
type GradeRequest struct {
	ScenarioID      string        `json:"scenarioId"`
	Mode            Mode          `json:"mode"`
	Datasheet       Datasheet     `json:"datasheet"`
	Answers         PlayerAnswers `json:"answers"`
	ExplanationText string        `json:"explanationText,omitempty"`
	Telemetry       Telemetry     `json:"telemetry"`
}
