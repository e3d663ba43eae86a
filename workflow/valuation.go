package workflow

import (
	"fmt"

	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LadderTier is the calculator's view of one rung of any tiered ladder.
type LadderTier struct {
	Threshold decimal.Decimal
	Value     decimal.Decimal
}

// InterpolateLadder returns the ladder value at magnitude x. Tiers must be
// sorted ascending by threshold. Outside the ladder the value clamps to the
// nearest end; between rungs it interpolates linearly and rounds half-up to
// the nearest whole dollar.
func InterpolateLadder(tiers []LadderTier, x decimal.Decimal) decimal.Decimal {
	if len(tiers) == 0 {
		return decimal.Zero
	}
	if x.LessThanOrEqual(tiers[0].Threshold) {
		return tiers[0].Value
	}
	last := tiers[len(tiers)-1]
	if x.GreaterThanOrEqual(last.Threshold) {
		return last.Value
	}
	for i := 1; i < len(tiers); i++ {
		lo, hi := tiers[i-1], tiers[i]
		if x.GreaterThanOrEqual(lo.Threshold) && x.LessThanOrEqual(hi.Threshold) {
			span := hi.Threshold.Sub(lo.Threshold)
			if span.IsZero() {
				return hi.Value
			}
			fraction := x.Sub(lo.Threshold).Div(span)
			return utils.RoundHalfUp(lo.Value.Add(fraction.Mul(hi.Value.Sub(lo.Value))))
		}
	}
	return last.Value
}

func landTiers(tiers []*models.LandLadderTier) []LadderTier {
	out := make([]LadderTier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, LadderTier{Threshold: t.Threshold, Value: t.Value})
	}
	return out
}

func waterTiers(tiers []*models.WaterBodyLadderTier) []LadderTier {
	out := make([]LadderTier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, LadderTier{Threshold: t.Threshold, Value: t.Value})
	}
	return out
}

const excessAcreageUseType = "Excess Acreage"

// RedistributeExcessAcreage clamps every acreage line above the zone minimum
// down to the minimum and moves the surplus onto a single excess-acreage
// line, creating one if the card has none. Runs once per assessment, before
// per-line valuation, so results do not depend on line order. Total acreage
// across the card is conserved.
func RedistributeExcessAcreage(assessment *models.LandAssessment, minimumAcreage decimal.Decimal) bool {

	if minimumAcreage.LessThanOrEqual(decimal.Zero) {
		return false
	}

	excess := decimal.Zero
	for _, line := range assessment.Lines {
		if line.SizeUnit != models.SizeUnitAcres {
			continue
		}
		if utils.DereferencePtr(line.IsExcessAcreage) {
			continue
		}
		if line.Size.GreaterThan(minimumAcreage) {
			excess = excess.Add(line.Size.Sub(minimumAcreage))
			line.Size = minimumAcreage
		}
	}
	if excess.IsZero() {
		return false
	}

	for _, line := range assessment.Lines {
		if utils.DereferencePtr(line.IsExcessAcreage) {
			line.Size = line.Size.Add(excess)
			return false
		}
	}

	assessment.Lines = append(assessment.Lines, &models.LandUseLine{
		LineNumber:      len(assessment.Lines) + 1,
		LandUseType:     excessAcreageUseType,
		Size:            excess,
		SizeUnit:        models.SizeUnitAcres,
		IsExcessAcreage: utils.NewTrue(),
	})
	return true
}

// CalcResult is the calculator's full output for one assessment card.
// Warnings carry every neutral-fallback substitution made along the way; the
// batch runner surfaces them in its error report instead of failing parcels.
type CalcResult struct {
	Totals               models.CalculatedTotals
	ExcessAcreageCreated bool
	Warnings             []string
}

type lineContext struct {
	snapshot *models.ResolvedSnapshot
	zone     *models.Zone
	warnings []string
}

func (c *lineContext) warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Calculate values one assessment card against a resolved configuration
// snapshot. Pure: it mutates only the passed assessment's lines (sizes via
// redistribution, per-line values) and never touches the store. Missing
// configuration is substituted with neutral defaults and recorded as a
// warning; the calculator always produces a result.
func Calculate(assessment *models.LandAssessment, snapshot *models.ResolvedSnapshot) *CalcResult {

	result := &CalcResult{}
	lc := &lineContext{snapshot: snapshot}

	lc.zone = snapshot.ZoneByCode(assessment.ZoneCode)
	if lc.zone == nil {
		lc.warnf("zone %q is not configured for year %d", assessment.ZoneCode, snapshot.Year)
	} else {
		result.ExcessAcreageCreated = RedistributeExcessAcreage(assessment, lc.zone.MinimumAcreage)
	}

	for _, line := range assessment.Lines {
		line.MarketValue = marketValueForLine(lc, line)
	}

	applyCurrentUse(lc, assessment)

	totals := models.CalculatedTotals{
		MarketValue:      decimal.Zero,
		CurrentUseValue:  decimal.Zero,
		CurrentUseCredit: decimal.Zero,
		AssessedValue:    decimal.Zero,
	}
	for _, line := range assessment.Lines {
		totals.MarketValue = totals.MarketValue.Add(line.MarketValue)
		totals.CurrentUseValue = totals.CurrentUseValue.Add(line.CurrentUseValue)
		totals.CurrentUseCredit = totals.CurrentUseCredit.Add(line.MarketValue.Sub(line.AssessedValue))
		totals.AssessedValue = totals.AssessedValue.Add(line.AssessedValue)
	}
	result.Totals = totals
	result.Warnings = lc.warnings
	return result
}

// marketValueForLine prices one line: ladder rate times size, then the
// multiplicative factor chain (neighborhood, site, driveway, road,
// topography, condition), each defaulting to neutral 100% when the line
// names nothing or the snapshot has no match for what it names.
func marketValueForLine(lc *lineContext, line *models.LandUseLine) decimal.Decimal {

	base := baseValueForLine(lc, line)

	if line.WaterBodyName != "" && line.WaterFrontage != nil {
		tiers := lc.snapshot.WaterBodyLadder(line.WaterBodyName)
		if len(tiers) == 0 {
			lc.warnf("water body %q has no ladder for year %d", line.WaterBodyName, lc.snapshot.Year)
		} else {
			rate := InterpolateLadder(waterTiers(tiers), *line.WaterFrontage)
			base = base.Add(rate.Mul(*line.WaterFrontage))
		}
	}

	value := base
	value = value.Mul(lc.neighborhoodFactor(line)).Div(hundred)
	value = value.Mul(lc.attributeFactor(models.LandAttributeSite, line.Site)).Div(hundred)
	value = value.Mul(lc.attributeFactor(models.LandAttributeDriveway, line.Driveway)).Div(hundred)
	value = value.Mul(lc.attributeFactor(models.LandAttributeRoad, line.Road)).Div(hundred)
	value = value.Mul(lc.attributeFactor(models.LandAttributeTopography, line.Topography)).Div(hundred)
	if line.ConditionPercent != nil {
		value = value.Mul(*line.ConditionPercent).Div(hundred)
	}
	return utils.RoundHalfUp(value)
}

func baseValueForLine(lc *lineContext, line *models.LandUseLine) decimal.Decimal {

	if utils.DereferencePtr(line.IsExcessAcreage) {
		if lc.zone == nil {
			return decimal.Zero
		}
		return lc.zone.ExcessAcreageRate.Mul(line.Size)
	}

	if lc.zone == nil {
		return decimal.Zero
	}

	ladderType := models.LadderTypeAcreage
	if line.SizeUnit == models.SizeUnitFrontage {
		ladderType = models.LadderTypeFrontage
	}
	tiers := lc.snapshot.LadderForZone(lc.zone.Code, ladderType)
	if len(tiers) == 0 {
		lc.warnf("zone %q has no %s ladder for year %d", lc.zone.Code, ladderType, lc.snapshot.Year)
		return decimal.Zero
	}
	rate := InterpolateLadder(landTiers(tiers), line.Size)
	return rate.Mul(line.Size)
}

func (c *lineContext) neighborhoodFactor(line *models.LandUseLine) decimal.Decimal {
	if line.Neighborhood == "" {
		return hundred
	}
	percent, found := c.snapshot.NeighborhoodPercent(line.Neighborhood)
	if !found {
		c.warnf("neighborhood code %q is not configured for year %d", line.Neighborhood, c.snapshot.Year)
	}
	return percent
}

func (c *lineContext) attributeFactor(kind models.LandAttributeKind, displayText string) decimal.Decimal {
	if displayText == "" {
		return hundred
	}
	percent, found := c.snapshot.AttributeFactor(kind, displayText)
	if !found {
		c.warnf("%s factor %q is not configured for year %d", kind, displayText, c.snapshot.Year)
	}
	return percent
}

// applyCurrentUse runs the alternate valuation for enrolled lines. The
// per-acre rate comes from the line, clamped into the category's configured
// band; the municipality's acreage-discount curve then reduces it based on
// the card's total enrolled acreage. The credit (market minus current-use)
// never goes below zero: current use can only lower an assessment.
func applyCurrentUse(lc *lineContext, assessment *models.LandAssessment) {

	enrolledAcreage := decimal.Zero
	for _, line := range assessment.Lines {
		if utils.DereferencePtr(line.IsCurrentUse) && line.SizeUnit == models.SizeUnitAcres {
			enrolledAcreage = enrolledAcreage.Add(line.Size)
		}
	}

	discount := decimal.Zero
	if lc.snapshot.Municipality != nil {
		discount = AcreageDiscountPercent(
			enrolledAcreage,
			lc.snapshot.Municipality.CuMinAcreage,
			lc.snapshot.Municipality.CuMaxAcreage,
			lc.snapshot.Municipality.CuMaxDiscountPercent,
		)
	}

	for _, line := range assessment.Lines {
		if !utils.DereferencePtr(line.IsCurrentUse) {
			line.CurrentUseValue = decimal.Zero
			line.AssessedValue = line.MarketValue
			continue
		}

		rate := currentUseRateForLine(lc, line)
		value := rate.Mul(line.Size)
		value = value.Mul(hundred.Sub(discount)).Div(hundred)
		value = utils.RoundHalfUp(value)

		credit := line.MarketValue.Sub(value)
		if credit.IsNegative() {
			credit = decimal.Zero
		}
		line.CurrentUseValue = value
		line.AssessedValue = line.MarketValue.Sub(credit)
	}
}

func currentUseRateForLine(lc *lineContext, line *models.LandUseLine) decimal.Decimal {
	band := lc.snapshot.CurrentUseRateFor(line.CurrentUseCategory)
	if band == nil {
		lc.warnf("current use category %q is not configured for year %d", line.CurrentUseCategory, lc.snapshot.Year)
		return utils.DereferencePtr(line.CurrentUseRate)
	}
	rate := band.MinRate.Add(band.MaxRate).Div(decimal.NewFromInt(2))
	if line.CurrentUseRate != nil {
		rate = *line.CurrentUseRate
		if rate.LessThan(band.MinRate) {
			rate = band.MinRate
		}
		if rate.GreaterThan(band.MaxRate) {
			rate = band.MaxRate
		}
	}
	return rate
}

// AcreageDiscountPercent is the municipality-level discount curve: zero below
// minAcreage, maxDiscount at or above maxAcreage, linear between.
func AcreageDiscountPercent(acreage, minAcreage, maxAcreage, maxDiscount decimal.Decimal) decimal.Decimal {
	if maxDiscount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if acreage.LessThan(minAcreage) {
		return decimal.Zero
	}
	if acreage.GreaterThanOrEqual(maxAcreage) || maxAcreage.LessThanOrEqual(minAcreage) {
		return maxDiscount
	}
	fraction := acreage.Sub(minAcreage).Div(maxAcreage.Sub(minAcreage))
	return fraction.Mul(maxDiscount)
}
