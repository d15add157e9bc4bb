package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/terra-clan/psv-academy/internal/models"
)

// Datasheet deductions
const (
	maxMissingDeduction   = 15.0
	missingFractionWeight = 20.0

	liquidMassFlowDeduction    = 3.0
	liquidGravityDeduction     = 3.0
	vaporMWDeduction           = 2.0
	vaporKDeduction            = 2.0
	setPressureDeduction       = 3.0
	temperatureDeduction       = 2.0
	flareBackpressureDeduction = 2.0
	genericCaseDeduction       = 2.0

	maxSetPressure   = 5000.0
	minRelievingTemp = -100.0
	maxRelievingTemp = 1500.0
)

// DatasheetReport is the output of the datasheet validator
type DatasheetReport struct {
	Score         int
	MissingFields []string
	Issues        []string
}

// RequiredFields merges the scenario requirements with the answer key's full-credit fields,
// preserving order and dropping duplicates.
func RequiredFields(sc *models.Scenario, oc *models.Outcome) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(fields []string) {
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	add(sc.DatasheetRequirements)
	if oc != nil {
		add(oc.RequiredFieldsForFullCredit)
	}
	return out
}

// EffectiveServiceType prefers the datasheet's own discriminator and falls back to the scenario's
func EffectiveServiceType(ds *models.Datasheet, sc *models.Scenario) models.ServiceType {
	if st, ok := models.ParseServiceType(ds.ServiceType); ok {
		return st
	}
	return sc.ServiceType
}

// ValidateDatasheet scores presence and plausibility of the submitted fields (0-30).
// It never fails: incompleteness is what it measures.
func ValidateDatasheet(ds *models.Datasheet, required []string, service models.ServiceType, answers *models.PlayerAnswers) DatasheetReport {
	report := DatasheetReport{MissingFields: []string{}, Issues: []string{}}
	deductions := 0.0

	for _, f := range required {
		if !ds.Has(f) {
			report.MissingFields = append(report.MissingFields, f)
		}
	}
	if len(required) > 0 && len(report.MissingFields) > 0 {
		frac := float64(len(report.MissingFields)) / float64(len(required))
		deductions += math.Min(maxMissingDeduction, frac*missingFractionWeight)
		report.Issues = append(report.Issues, fmt.Sprintf("%d of %d required fields are missing", len(report.MissingFields), len(required)))
	}

	switch {
	case service == models.ServiceLiquid:
		if ds.MassFlow != nil && ds.VolumetricFlow == nil {
			deductions += liquidMassFlowDeduction
			report.Issues = append(report.Issues, "Liquid relief should be characterized by volumetric flow (gpm), not mass flow")
		}
		if ds.SpecificGravity == nil {
			deductions += liquidGravityDeduction
			report.Issues = append(report.Issues, "Specific gravity is required for liquid service")
		}
	case service.IsVapor():
		if ds.MolecularWeight == nil {
			deductions += vaporMWDeduction
			report.Issues = append(report.Issues, "Molecular weight is required for gas or steam service")
		}
		if ds.SpecificHeatRatio == nil {
			deductions += vaporKDeduction
			report.Issues = append(report.Issues, "Specific heat ratio (k) is required for gas or steam service")
		}
	}

	if p := ds.SetPressure; p != nil && (*p < 0 || *p > maxSetPressure) {
		deductions += setPressureDeduction
		report.Issues = append(report.Issues, fmt.Sprintf("Set pressure %.1f is outside the plausible range 0-%.0f", *p, maxSetPressure))
	}
	if t := ds.RelievingTemperature; t != nil && (*t < minRelievingTemp || *t > maxRelievingTemp) {
		deductions += temperatureDeduction
		report.Issues = append(report.Issues, fmt.Sprintf("Relieving temperature %.1f is outside the plausible range %.0f to %.0f", *t, minRelievingTemp, maxRelievingTemp))
	}

	if ds.DischargesTo(models.DischargeFlare) {
		if ds.SuperimposedBackpressure == nil {
			deductions += flareBackpressureDeduction
			report.Issues = append(report.Issues, "Superimposed backpressure must be documented for flare discharge")
		}
		if ds.BuiltUpBackpressure == nil {
			deductions += flareBackpressureDeduction
			report.Issues = append(report.Issues, "Built-up backpressure must be documented for flare discharge")
		}
	}

	if answers != nil && strings.EqualFold(strings.TrimSpace(answers.RelievingCase), models.CaseOther) {
		deductions += genericCaseDeduction
		report.Issues = append(report.Issues, "Identify a specific relieving case instead of the generic category")
	}

	report.Score = clamp(int(math.Round(models.MaxDatasheetQuality-deductions)), models.MaxDatasheetQuality)
	return report
}

// clamp bounds v to [0, max]
func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
