package models

import (
	"context"
	"sort"
	"strings"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ResolvedSnapshot is the full configuration surface of one municipality as
// seen from one assessment year: every table already collapsed to one head
// record per business key. The calculator reads only from a snapshot, so a
// batch run sees a consistent configuration even while editors keep working.
type ResolvedSnapshot struct {
	MunicipalityId       string                 `json:"municipality_id"`
	Year                 int                    `json:"year"`
	Zones                []*Zone                `json:"zones"`
	LandLadders          []*LandLadderTier      `json:"land_ladders"`
	WaterBodyLadders     []*WaterBodyLadderTier `json:"water_body_ladders"`
	NeighborhoodCodes    []*NeighborhoodCode    `json:"neighborhood_codes"`
	LandAttributeFactors []*LandAttributeFactor `json:"land_attribute_factors"`
	CurrentUseRates      []*CurrentUseRate      `json:"current_use_rates"`
	BuildingCodes        []*BuildingCode        `json:"building_codes"`
	BuildingFeatureCodes []*BuildingFeatureCode `json:"building_feature_codes"`
	SketchSubAreaFactors []*SketchSubAreaFactor `json:"sketch_sub_area_factors"`
	Municipality         *Municipality          `json:"municipality"`
}

// GetResolvedSnapshot assembles the snapshot for (municipality, year), going
// through redis first. Invalidation is prefix-based on any config write.
func GetResolvedSnapshot(ctx context.Context, municipalityId string, year int) (*ResolvedSnapshot, error) {

	cached, err := utils.RetrieveSnapshotCache[ResolvedSnapshot](municipalityId, year)
	if err != nil {
		logger := config.GetLogger()
		logger.WithFields(logrus.Fields{
			"municipalityId": municipalityId,
			"year":           year,
		}).Warn("snapshot.cache.read_failed")
	}
	if cached != nil {
		return cached, nil
	}

	snapshot := &ResolvedSnapshot{MunicipalityId: municipalityId, Year: year}

	if snapshot.Zones, err = ResolveForYear[Zone](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.LandLadders, err = ResolveForYear[LandLadderTier](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.WaterBodyLadders, err = ResolveForYear[WaterBodyLadderTier](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.NeighborhoodCodes, err = ResolveForYear[NeighborhoodCode](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.LandAttributeFactors, err = ResolveForYear[LandAttributeFactor](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.CurrentUseRates, err = ResolveForYear[CurrentUseRate](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.BuildingCodes, err = ResolveForYear[BuildingCode](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.BuildingFeatureCodes, err = ResolveForYear[BuildingFeatureCode](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.SketchSubAreaFactors, err = ResolveForYear[SketchSubAreaFactor](ctx, municipalityId, year); err != nil {
		return nil, err
	}
	if snapshot.Municipality, err = GetMunicipalityById(ctx, municipalityId); err != nil {
		return nil, err
	}

	if err := utils.StoreSnapshotCache(municipalityId, year, snapshot); err != nil {
		logger := config.GetLogger()
		logger.WithFields(logrus.Fields{
			"municipalityId": municipalityId,
			"year":           year,
		}).Warn("snapshot.cache.write_failed")
	}
	return snapshot, nil
}

func (s *ResolvedSnapshot) ZoneByCode(code string) *Zone {
	for _, zone := range s.Zones {
		if strings.EqualFold(zone.Code, code) {
			return zone
		}
	}
	return nil
}

// LadderForZone returns the zone's tiers of the given kind ordered by
// ascending threshold, which is the order interpolation walks them in.
func (s *ResolvedSnapshot) LadderForZone(zoneCode string, ladderType LadderType) []*LandLadderTier {
	var tiers []*LandLadderTier
	for _, tier := range s.LandLadders {
		if strings.EqualFold(tier.ZoneCode, zoneCode) && tier.LadderType == ladderType {
			tiers = append(tiers, tier)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold.LessThan(tiers[j].Threshold)
	})
	return tiers
}

func (s *ResolvedSnapshot) WaterBodyLadder(waterBodyName string) []*WaterBodyLadderTier {
	var tiers []*WaterBodyLadderTier
	for _, tier := range s.WaterBodyLadders {
		if strings.EqualFold(tier.WaterBodyName, waterBodyName) {
			tiers = append(tiers, tier)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold.LessThan(tiers[j].Threshold)
	})
	return tiers
}

// NeighborhoodPercent falls back to the neutral 100% when the code is absent.
func (s *ResolvedSnapshot) NeighborhoodPercent(code string) (decimal.Decimal, bool) {
	for _, nc := range s.NeighborhoodCodes {
		if strings.EqualFold(nc.Code, code) {
			return nc.Percent, true
		}
	}
	return decimal.NewFromInt(100), false
}

func (s *ResolvedSnapshot) AttributeFactor(kind LandAttributeKind, displayText string) (decimal.Decimal, bool) {
	for _, factor := range s.LandAttributeFactors {
		if factor.Kind == kind && strings.EqualFold(factor.DisplayText, displayText) {
			return factor.Percent, true
		}
	}
	return decimal.NewFromInt(100), false
}

func (s *ResolvedSnapshot) SubAreaFactor(label string) *SketchSubAreaFactor {
	for _, factor := range s.SketchSubAreaFactors {
		if strings.EqualFold(factor.Label, label) {
			return factor
		}
	}
	return nil
}

func (s *ResolvedSnapshot) CurrentUseRateFor(category string) *CurrentUseRate {
	for _, rate := range s.CurrentUseRates {
		if strings.EqualFold(rate.Category, category) {
			return rate
		}
	}
	return nil
}

func (s *ResolvedSnapshot) BuildingCodeFor(code string) *BuildingCode {
	for _, bc := range s.BuildingCodes {
		if strings.EqualFold(bc.Code, code) {
			return bc
		}
	}
	return nil
}
