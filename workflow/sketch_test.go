package workflow

import (
	"testing"

	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
)

func sketchSnapshot() *models.ResolvedSnapshot {
	return &models.ResolvedSnapshot{
		Year: 2026,
		SketchSubAreaFactors: []*models.SketchSubAreaFactor{
			{Label: "FFF", FactorPercent: dec("100"), IsLivingSpace: utils.NewTrue()},
			{Label: "HSF", FactorPercent: dec("50"), IsLivingSpace: utils.NewTrue()},
			{Label: "GAR", FactorPercent: dec("35"), IsLivingSpace: utils.NewFalse()},
		},
	}
}

func TestAggregateSketch(t *testing.T) {
	shapes := []*models.SketchShape{
		{SubAreaLabel: "FFF", Area: dec("1200")},
		{SubAreaLabel: "HSF", Area: dec("600")},
		{SubAreaLabel: "GAR", Area: dec("400")},
	}
	summary := AggregateSketch(shapes, sketchSnapshot())

	if len(summary.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", summary.Warnings)
	}
	if !summary.TotalArea.Equal(dec("2200")) {
		t.Fatalf("total area = %s, want 2200", summary.TotalArea)
	}
	// 1200*1.0 + 600*0.5 + 400*0.35 = 1640
	if !summary.EffectiveArea.Equal(dec("1640")) {
		t.Fatalf("effective area = %s, want 1640", summary.EffectiveArea)
	}
	// Only FFF and HSF count as living space: 1200 + 300 = 1500.
	if !summary.GrossLivingArea.Equal(dec("1500")) {
		t.Fatalf("gross living area = %s, want 1500", summary.GrossLivingArea)
	}
}

func TestAggregateSketchUnknownLabel(t *testing.T) {
	shapes := []*models.SketchShape{
		{SubAreaLabel: "XYZ", Area: dec("500")},
	}
	summary := AggregateSketch(shapes, sketchSnapshot())

	if len(summary.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", summary.Warnings)
	}
	// Unknown labels weight at 100% but never count as living space.
	if !summary.EffectiveArea.Equal(dec("500")) {
		t.Fatalf("effective area = %s, want 500", summary.EffectiveArea)
	}
	if !summary.GrossLivingArea.IsZero() {
		t.Fatalf("gross living area = %s, want 0", summary.GrossLivingArea)
	}
}

func TestAggregateSketchEmpty(t *testing.T) {
	summary := AggregateSketch(nil, sketchSnapshot())
	if !summary.TotalArea.IsZero() || !summary.EffectiveArea.IsZero() || !summary.GrossLivingArea.IsZero() {
		t.Fatalf("empty sketch should aggregate to zeros: %+v", summary)
	}
}
