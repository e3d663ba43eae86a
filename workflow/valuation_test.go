package workflow

import (
	"testing"

	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. Calculate and its helpers are
// pure over an in-memory assessment and a resolved snapshot, so the valuation
// semantics are verifiable without MySQL.

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func ladder(pairs ...string) []LadderTier {
	if len(pairs)%2 != 0 {
		panic("ladder wants threshold/value pairs")
	}
	var tiers []LadderTier
	for i := 0; i < len(pairs); i += 2 {
		tiers = append(tiers, LadderTier{Threshold: dec(pairs[i]), Value: dec(pairs[i+1])})
	}
	return tiers
}

func TestInterpolateLadder(t *testing.T) {
	tiers := ladder("0", "10", "100", "20", "200", "40")

	cases := []struct {
		name string
		x    string
		want string
	}{
		{"below first rung clamps down", "-5", "10"},
		{"at first rung", "0", "10"},
		{"halfway up first span", "50", "15"},
		{"at middle rung", "100", "20"},
		{"halfway up second span", "150", "30"},
		{"at last rung", "200", "40"},
		{"above last rung clamps up", "300", "40"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InterpolateLadder(tiers, dec(tc.x))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("InterpolateLadder(%s) = %s, want %s", tc.x, got, tc.want)
			}
		})
	}
}

func TestInterpolateLadderRoundsHalfUp(t *testing.T) {
	// 25% of the way from 10 to 11 is 10.25 -> 10; 50% is 10.5 -> 11.
	tiers := ladder("0", "10", "100", "11")
	if got := InterpolateLadder(tiers, dec("25")); !got.Equal(dec("10")) {
		t.Fatalf("got %s, want 10", got)
	}
	if got := InterpolateLadder(tiers, dec("50")); !got.Equal(dec("11")) {
		t.Fatalf("got %s, want 11", got)
	}
}

func TestInterpolateLadderEmpty(t *testing.T) {
	if got := InterpolateLadder(nil, dec("5")); !got.IsZero() {
		t.Fatalf("empty ladder should value at zero, got %s", got)
	}
}

func totalAcreage(a *models.LandAssessment) decimal.Decimal {
	total := decimal.Zero
	for _, line := range a.Lines {
		if line.SizeUnit == models.SizeUnitAcres {
			total = total.Add(line.Size)
		}
	}
	return total
}

func TestRedistributeExcessAcreageCreatesLine(t *testing.T) {
	assessment := &models.LandAssessment{
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("5"), SizeUnit: models.SizeUnitAcres},
		},
	}
	before := totalAcreage(assessment)

	created := RedistributeExcessAcreage(assessment, dec("2"))
	if !created {
		t.Fatal("expected a new excess-acreage line")
	}
	if len(assessment.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(assessment.Lines))
	}
	if !assessment.Lines[0].Size.Equal(dec("2")) {
		t.Fatalf("primary line should be clamped to 2, got %s", assessment.Lines[0].Size)
	}
	excess := assessment.Lines[1]
	if !utils.DereferencePtr(excess.IsExcessAcreage) {
		t.Fatal("new line should be flagged excess acreage")
	}
	if !excess.Size.Equal(dec("3")) {
		t.Fatalf("excess line should carry 3 acres, got %s", excess.Size)
	}
	if after := totalAcreage(assessment); !after.Equal(before) {
		t.Fatalf("acreage not conserved: %s before, %s after", before, after)
	}
}

func TestRedistributeExcessAcreageReusesExistingLine(t *testing.T) {
	assessment := &models.LandAssessment{
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("4"), SizeUnit: models.SizeUnitAcres},
			{LineNumber: 2, LandUseType: "Excess Acreage", Size: dec("1"), SizeUnit: models.SizeUnitAcres, IsExcessAcreage: utils.NewTrue()},
		},
	}
	before := totalAcreage(assessment)

	created := RedistributeExcessAcreage(assessment, dec("2"))
	if created {
		t.Fatal("should fold surplus into the existing excess line")
	}
	if len(assessment.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(assessment.Lines))
	}
	if !assessment.Lines[1].Size.Equal(dec("3")) {
		t.Fatalf("excess line should grow to 3, got %s", assessment.Lines[1].Size)
	}
	if after := totalAcreage(assessment); !after.Equal(before) {
		t.Fatalf("acreage not conserved: %s before, %s after", before, after)
	}
}

func TestRedistributeExcessAcreageSkipsNonAcres(t *testing.T) {
	assessment := &models.LandAssessment{
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Waterfront", Size: dec("300"), SizeUnit: models.SizeUnitFrontage},
		},
	}
	if RedistributeExcessAcreage(assessment, dec("2")) {
		t.Fatal("frontage lines must not redistribute")
	}
	if !assessment.Lines[0].Size.Equal(dec("300")) {
		t.Fatalf("frontage size must be untouched, got %s", assessment.Lines[0].Size)
	}
}

func TestRedistributeExcessAcreageNoMinimum(t *testing.T) {
	assessment := &models.LandAssessment{
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("50"), SizeUnit: models.SizeUnitAcres},
		},
	}
	if RedistributeExcessAcreage(assessment, decimal.Zero) {
		t.Fatal("zero minimum disables redistribution")
	}
}

func TestAcreageDiscountPercent(t *testing.T) {
	cases := []struct {
		name    string
		acreage string
		want    string
	}{
		{"below minimum", "5", "0"},
		{"at minimum", "10", "0"},
		{"halfway", "17.5", "10"},
		{"at maximum", "25", "20"},
		{"above maximum", "40", "20"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AcreageDiscountPercent(dec(tc.acreage), dec("10"), dec("25"), dec("20"))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("discount(%s) = %s, want %s", tc.acreage, got, tc.want)
			}
		})
	}
}

func TestAcreageDiscountPercentDegenerateCurve(t *testing.T) {
	// min == max: anything at or above min gets the full discount.
	if got := AcreageDiscountPercent(dec("10"), dec("10"), dec("10"), dec("20")); !got.Equal(dec("20")) {
		t.Fatalf("got %s, want 20", got)
	}
	if got := AcreageDiscountPercent(dec("9"), dec("10"), dec("10"), dec("20")); !got.IsZero() {
		t.Fatalf("got %s, want 0", got)
	}
}

func testSnapshot() *models.ResolvedSnapshot {
	return &models.ResolvedSnapshot{
		MunicipalityId: "muni-1",
		Year:           2026,
		Zones: []*models.Zone{
			{Code: "R1", MinimumAcreage: dec("2"), ExcessAcreageRate: dec("1500")},
		},
		LandLadders: []*models.LandLadderTier{
			{ZoneCode: "R1", LadderType: models.LadderTypeAcreage, TierOrder: 0, Threshold: dec("0"), Value: dec("40000")},
			{ZoneCode: "R1", LadderType: models.LadderTypeAcreage, TierOrder: 1, Threshold: dec("2"), Value: dec("60000")},
		},
		WaterBodyLadders: []*models.WaterBodyLadderTier{
			{WaterBodyName: "Granite Lake", TierOrder: 0, Threshold: dec("0"), Value: dec("500")},
			{WaterBodyName: "Granite Lake", TierOrder: 1, Threshold: dec("100"), Value: dec("900")},
		},
		NeighborhoodCodes: []*models.NeighborhoodCode{
			{Code: "A", Percent: dec("120")},
		},
		LandAttributeFactors: []*models.LandAttributeFactor{
			{Kind: models.LandAttributeSite, DisplayText: "Steep", Percent: dec("80")},
		},
		CurrentUseRates: []*models.CurrentUseRate{
			{Category: "Forest Land", MinRate: dec("14"), MaxRate: dec("86")},
		},
		Municipality: &models.Municipality{
			CuMinAcreage:         dec("10"),
			CuMaxAcreage:         dec("25"),
			CuMaxDiscountPercent: dec("20"),
		},
	}
}

func TestCalculateSimpleLine(t *testing.T) {
	// 2 acres at the 2-acre rung: 60000/acre * 2 = 120000, all factors neutral.
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("2"), SizeUnit: models.SizeUnitAcres},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if !result.Totals.MarketValue.Equal(dec("120000")) {
		t.Fatalf("market value = %s, want 120000", result.Totals.MarketValue)
	}
	if !result.Totals.AssessedValue.Equal(dec("120000")) {
		t.Fatalf("assessed value = %s, want 120000", result.Totals.AssessedValue)
	}
	if !result.Totals.CurrentUseCredit.IsZero() {
		t.Fatalf("credit should be zero, got %s", result.Totals.CurrentUseCredit)
	}
}

func TestCalculateAppliesFactors(t *testing.T) {
	// base 120000, neighborhood 120%, site 80%: 120000 * 1.2 * 0.8 = 115200.
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("2"), SizeUnit: models.SizeUnitAcres,
				Neighborhood: "A", Site: "Steep"},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if !result.Totals.MarketValue.Equal(dec("115200")) {
		t.Fatalf("market value = %s, want 115200", result.Totals.MarketValue)
	}
}

func TestCalculateUnknownFactorWarnsAndStaysNeutral(t *testing.T) {
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("2"), SizeUnit: models.SizeUnitAcres,
				Neighborhood: "Z"},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	// Unknown code falls back to 100%: value is unchanged.
	if !result.Totals.MarketValue.Equal(dec("120000")) {
		t.Fatalf("market value = %s, want 120000", result.Totals.MarketValue)
	}
}

func TestCalculateRedistributesAndValuesExcess(t *testing.T) {
	// 5 acres in a 2-acre-minimum zone: 2 acres at 60000 = 120000, plus a new
	// excess line of 3 acres at the zone's 1500 excess rate = 4500.
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("5"), SizeUnit: models.SizeUnitAcres},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if !result.ExcessAcreageCreated {
		t.Fatal("expected excess-acreage line creation")
	}
	if !result.Totals.MarketValue.Equal(dec("124500")) {
		t.Fatalf("market value = %s, want 124500", result.Totals.MarketValue)
	}
}

func TestCalculateWaterFrontage(t *testing.T) {
	// Water add-on: frontage 150 interpolates the 0->100 span clamp... 150 is
	// above the 100 rung so it clamps to 900/ft: 900 * 150 = 135000 on top of
	// the 2-acre base of 120000.
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("2"), SizeUnit: models.SizeUnitAcres,
				WaterBodyName: "Granite Lake", WaterFrontage: decPtr("150")},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if !result.Totals.MarketValue.Equal(dec("255000")) {
		t.Fatalf("market value = %s, want 255000", result.Totals.MarketValue)
	}
}

func TestCalculateCurrentUse(t *testing.T) {
	// 20 enrolled acres, discount curve gives (20-10)/(25-10)*20 ~ 13.33%.
	// Default rate is the band midpoint (14+86)/2 = 50. Value before discount
	// 20*50 = 1000; after discount 1000 * (100-13.33...)/100 = 866.67 -> 867.
	// The zone minimum is zeroed so redistribution leaves the line intact.
	snapshot := testSnapshot()
	snapshot.Zones[0].MinimumAcreage = decimal.Zero
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Forest Land", Size: dec("20"), SizeUnit: models.SizeUnitAcres,
				IsCurrentUse: utils.NewTrue(), CurrentUseCategory: "Forest Land"},
		},
	}
	result := Calculate(assessment, snapshot)
	line := assessment.Lines[0]
	if !line.CurrentUseValue.Equal(dec("867")) {
		t.Fatalf("current use value = %s, want 867", line.CurrentUseValue)
	}
	if !line.AssessedValue.Equal(line.CurrentUseValue) {
		t.Fatalf("assessed = %s, want current-use value %s", line.AssessedValue, line.CurrentUseValue)
	}
	wantCredit := line.MarketValue.Sub(line.CurrentUseValue)
	if !result.Totals.CurrentUseCredit.Equal(wantCredit) {
		t.Fatalf("credit = %s, want %s", result.Totals.CurrentUseCredit, wantCredit)
	}
}

func TestCalculateCurrentUseRateClampedToBand(t *testing.T) {
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Forest Land", Size: dec("5"), SizeUnit: models.SizeUnitAcres,
				IsCurrentUse: utils.NewTrue(), CurrentUseCategory: "Forest Land", CurrentUseRate: decPtr("500")},
		},
	}
	Calculate(assessment, testSnapshot())
	// Rate 500 clamps to the band max 86. 5 enrolled acres is under the
	// 10-acre discount floor, so no discount: value = 86 * 5 = 430... but the
	// 5-acre line was clamped to 2 by redistribution, leaving 2 enrolled
	// acres on this line: 86 * 2 = 172.
	if !assessment.Lines[0].CurrentUseValue.Equal(dec("172")) {
		t.Fatalf("current use value = %s, want 172", assessment.Lines[0].CurrentUseValue)
	}
}

func TestCalculateCreditNeverNegative(t *testing.T) {
	// A current-use value above market must not raise the assessment.
	snapshot := testSnapshot()
	snapshot.CurrentUseRates = []*models.CurrentUseRate{
		{Category: "Forest Land", MinRate: dec("100000"), MaxRate: dec("100000")},
	}
	assessment := &models.LandAssessment{
		ZoneCode: "R1",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Forest Land", Size: dec("2"), SizeUnit: models.SizeUnitAcres,
				IsCurrentUse: utils.NewTrue(), CurrentUseCategory: "Forest Land"},
		},
	}
	result := Calculate(assessment, snapshot)
	if result.Totals.CurrentUseCredit.IsNegative() {
		t.Fatalf("credit went negative: %s", result.Totals.CurrentUseCredit)
	}
	if !assessment.Lines[0].AssessedValue.Equal(assessment.Lines[0].MarketValue) {
		t.Fatalf("assessed %s should equal market %s when credit floors at zero",
			assessment.Lines[0].AssessedValue, assessment.Lines[0].MarketValue)
	}
}

func TestCalculateUnknownZoneWarns(t *testing.T) {
	assessment := &models.LandAssessment{
		ZoneCode: "XX",
		Lines: []*models.LandUseLine{
			{LineNumber: 1, LandUseType: "Primary Site", Size: dec("2"), SizeUnit: models.SizeUnitAcres},
		},
	}
	result := Calculate(assessment, testSnapshot())
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for the unconfigured zone")
	}
	if !result.Totals.MarketValue.IsZero() {
		t.Fatalf("unzoned card should value at zero, got %s", result.Totals.MarketValue)
	}
}
