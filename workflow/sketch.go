package workflow

import (
	"fmt"

	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

// SketchSummary aggregates a card's drawn shapes: every shape's area weighted
// by its sub-area factor, with the living-space subset forming gross living
// area.
type SketchSummary struct {
	TotalArea       decimal.Decimal `json:"total_area"`
	EffectiveArea   decimal.Decimal `json:"effective_area"`
	GrossLivingArea decimal.Decimal `json:"gross_living_area"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// AggregateSketch is pure: per-shape weighting then a sum, so shape order
// does not matter. An unconfigured sub-area label weights at 100% and is
// recorded as a warning.
func AggregateSketch(shapes []*models.SketchShape, snapshot *models.ResolvedSnapshot) SketchSummary {

	summary := SketchSummary{
		TotalArea:       decimal.Zero,
		EffectiveArea:   decimal.Zero,
		GrossLivingArea: decimal.Zero,
	}

	for _, shape := range shapes {
		summary.TotalArea = summary.TotalArea.Add(shape.Area)

		factorPercent := hundred
		isLivingSpace := false
		if factor := snapshot.SubAreaFactor(shape.SubAreaLabel); factor != nil {
			factorPercent = factor.FactorPercent
			isLivingSpace = utils.DereferencePtr(factor.IsLivingSpace)
		} else {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("sub-area %q is not configured for year %d", shape.SubAreaLabel, snapshot.Year))
		}

		weighted := shape.Area.Mul(factorPercent).Div(hundred)
		summary.EffectiveArea = summary.EffectiveArea.Add(weighted)
		if isLivingSpace {
			summary.GrossLivingArea = summary.GrossLivingArea.Add(weighted)
		}
	}

	summary.EffectiveArea = utils.RoundHalfUp(summary.EffectiveArea)
	summary.GrossLivingArea = utils.RoundHalfUp(summary.GrossLivingArea)
	return summary
}
