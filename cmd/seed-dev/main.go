// seed-dev creates a development municipality with a working configuration
// for the current assessment year: zones with acreage ladders, a waterfront
// ladder, neighborhood and attribute factors, current-use rate bands, and
// sketch sub-area factors, plus a couple of sample parcels. It prints a JWT
// for exercising the API against the seeded tenant.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-dev --year 2026
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := utils.ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func main() {
	year := flag.Int("year", 2026, "Assessment year to seed")
	name := flag.String("name", "Granite Falls", "Municipality name")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := seed(context.Background(), *name, *year); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, name string, year int) error {
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetIsAdminInContext(ctx, true)

	municipality, err := models.CreateMunicipality(ctx, &models.NewMunicipality{
		Name:                 name,
		State:                "NH",
		CuMinAcreage:         decPtr("10"),
		CuMaxAcreage:         decPtr("25"),
		CuMaxDiscountPercent: decPtr("20"),
	})
	if err != nil {
		return fmt.Errorf("create municipality: %w", err)
	}
	municipalityID := municipality.ID.String()
	ctx = utils.SetMunicipalityIdInContext(ctx, municipalityID)

	if _, err := models.CreateInitialAssessmentYear(ctx, municipalityID, year); err != nil {
		return fmt.Errorf("create assessment year: %w", err)
	}

	zones := []*models.NewZone{
		{Code: "R1", Description: "Rural residential", MinimumAcreage: decPtr("2"), ExcessAcreageRate: decPtr("1500"), EffectiveYear: year},
		{Code: "V1", Description: "Village", MinimumAcreage: decPtr("0.5"), ExcessAcreageRate: decPtr("5000"), EffectiveYear: year},
		{Code: "WF", Description: "Waterfront", MinimumAcreage: decPtr("1"), ExcessAcreageRate: decPtr("8000"), EffectiveYear: year},
	}
	for _, z := range zones {
		if _, err := models.CreateZone(ctx, z); err != nil {
			return fmt.Errorf("create zone %s: %w", z.Code, err)
		}
	}

	ladders := []*models.NewLandLadderTier{
		{ZoneCode: "R1", LadderType: models.LadderTypeAcreage, TierOrder: 0, Threshold: dec("0"), Value: dec("40000"), EffectiveYear: year},
		{ZoneCode: "R1", LadderType: models.LadderTypeAcreage, TierOrder: 1, Threshold: dec("1"), Value: dec("60000"), EffectiveYear: year},
		{ZoneCode: "R1", LadderType: models.LadderTypeAcreage, TierOrder: 2, Threshold: dec("2"), Value: dec("75000"), EffectiveYear: year},
		{ZoneCode: "V1", LadderType: models.LadderTypeAcreage, TierOrder: 0, Threshold: dec("0"), Value: dec("55000"), EffectiveYear: year},
		{ZoneCode: "V1", LadderType: models.LadderTypeAcreage, TierOrder: 1, Threshold: dec("0.5"), Value: dec("80000"), EffectiveYear: year},
		{ZoneCode: "WF", LadderType: models.LadderTypeAcreage, TierOrder: 0, Threshold: dec("0"), Value: dec("90000"), EffectiveYear: year},
		{ZoneCode: "WF", LadderType: models.LadderTypeAcreage, TierOrder: 1, Threshold: dec("1"), Value: dec("140000"), EffectiveYear: year},
		{ZoneCode: "WF", LadderType: models.LadderTypeFrontage, TierOrder: 0, Threshold: dec("0"), Value: dec("100000"), EffectiveYear: year},
		{ZoneCode: "WF", LadderType: models.LadderTypeFrontage, TierOrder: 1, Threshold: dec("150"), Value: dec("180000"), EffectiveYear: year},
	}
	for _, l := range ladders {
		if _, err := models.CreateLandLadderTier(ctx, l); err != nil {
			return fmt.Errorf("create ladder tier %s/%s/%d: %w", l.ZoneCode, l.LadderType, l.TierOrder, err)
		}
	}

	waterTiers := []*models.NewWaterBodyLadderTier{
		{WaterBodyName: "Granite Lake", TierOrder: 0, Threshold: dec("0"), Value: dec("500"), EffectiveYear: year},
		{WaterBodyName: "Granite Lake", TierOrder: 1, Threshold: dec("100"), Value: dec("900"), EffectiveYear: year},
	}
	for _, w := range waterTiers {
		if _, err := models.CreateWaterBodyLadderTier(ctx, w); err != nil {
			return fmt.Errorf("create water body tier: %w", err)
		}
	}

	neighborhoods := []*models.NewNeighborhoodCode{
		{Code: "A", Description: "Prime", Percent: dec("120"), EffectiveYear: year},
		{Code: "B", Description: "Average", Percent: dec("100"), EffectiveYear: year},
		{Code: "C", Description: "Below average", Percent: dec("85"), EffectiveYear: year},
	}
	for _, n := range neighborhoods {
		if _, err := models.CreateNeighborhoodCode(ctx, n); err != nil {
			return fmt.Errorf("create neighborhood %s: %w", n.Code, err)
		}
	}

	factors := []*models.NewLandAttributeFactor{
		{Kind: models.LandAttributeSite, DisplayText: "Level", Percent: dec("100"), EffectiveYear: year},
		{Kind: models.LandAttributeSite, DisplayText: "Steep", Percent: dec("80"), EffectiveYear: year},
		{Kind: models.LandAttributeDriveway, DisplayText: "Paved", Percent: dec("105"), EffectiveYear: year},
		{Kind: models.LandAttributeDriveway, DisplayText: "Gravel", Percent: dec("100"), EffectiveYear: year},
		{Kind: models.LandAttributeRoad, DisplayText: "Paved town road", Percent: dec("100"), EffectiveYear: year},
		{Kind: models.LandAttributeRoad, DisplayText: "Class VI", Percent: dec("75"), EffectiveYear: year},
		{Kind: models.LandAttributeTopography, DisplayText: "Rolling", Percent: dec("95"), EffectiveYear: year},
	}
	for _, f := range factors {
		if _, err := models.CreateLandAttributeFactor(ctx, f); err != nil {
			return fmt.Errorf("create attribute factor %s/%s: %w", f.Kind, f.DisplayText, err)
		}
	}

	rates := []*models.NewCurrentUseRate{
		{Category: "Farm Land", MinRate: dec("25"), MaxRate: dec("425"), EffectiveYear: year},
		{Category: "Forest Land", MinRate: dec("14"), MaxRate: dec("89"), EffectiveYear: year},
		{Category: "Unproductive Land", MinRate: dec("14"), MaxRate: dec("22"), EffectiveYear: year},
	}
	for _, r := range rates {
		if _, err := models.CreateCurrentUseRate(ctx, r); err != nil {
			return fmt.Errorf("create current-use rate %s: %w", r.Category, err)
		}
	}

	sketchFactors := []*models.NewSketchSubAreaFactor{
		{Label: "FFF", FactorPercent: dec("100"), IsLivingSpace: utils.NewTrue(), EffectiveYear: year},
		{Label: "HSF", FactorPercent: dec("50"), IsLivingSpace: utils.NewTrue(), EffectiveYear: year},
		{Label: "GAR", FactorPercent: dec("35"), IsLivingSpace: utils.NewFalse(), EffectiveYear: year},
		{Label: "DCK", FactorPercent: dec("10"), IsLivingSpace: utils.NewFalse(), EffectiveYear: year},
	}
	for _, s := range sketchFactors {
		if _, err := models.CreateSketchSubAreaFactor(ctx, s); err != nil {
			return fmt.Errorf("create sketch factor %s: %w", s.Label, err)
		}
	}

	parcels := []*models.NewLandAssessment{
		{
			PropertyId: 1001, CardNumber: 1, EffectiveYear: year, ZoneCode: "R1",
			Lines: []*models.NewLandUseLine{
				{LineNumber: 1, LandUseType: "Primary Site", Size: dec("5"), SizeUnit: models.SizeUnitAcres,
					Neighborhood: "B", Site: "Level", Driveway: "Gravel", Road: "Paved town road"},
			},
		},
		{
			PropertyId: 1002, CardNumber: 1, EffectiveYear: year, ZoneCode: "WF",
			Lines: []*models.NewLandUseLine{
				{LineNumber: 1, LandUseType: "Waterfront Site", Size: dec("180"), SizeUnit: models.SizeUnitFrontage,
					Neighborhood: "A", WaterBodyName: "Granite Lake", WaterFrontage: decPtr("180")},
				{LineNumber: 2, LandUseType: "Forest Land", Size: dec("22"), SizeUnit: models.SizeUnitAcres,
					IsCurrentUse: utils.NewTrue(), CurrentUseCategory: "Forest Land"},
			},
		},
	}
	for _, p := range parcels {
		if _, err := models.CreateLandAssessment(ctx, p); err != nil {
			return fmt.Errorf("create parcel %d: %w", p.PropertyId, err)
		}
	}

	token, err := utils.JwtGenerate(1, "Seed", municipalityID, "admin")
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Printf("municipality_id: %s\n", municipalityID)
	fmt.Printf("year: %d\n", year)
	fmt.Printf("token: %s\n", token)
	return nil
}
