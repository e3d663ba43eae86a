package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LadderType string

const (
	LadderTypeAcreage  LadderType = "acreage"
	LadderTypeFrontage LadderType = "frontage"
)

// LandLadderTier is one rung of a zone's land ladder: at Threshold acres (or
// frontage feet) the land is worth Value dollars, with linear interpolation
// between rungs. Tiers version independently, so a single rung can be
// re-priced for a target year without forking the whole ladder.
type LandLadderTier struct {
	ConfigBase
	TemporalRecord
	ZoneCode   string          `gorm:"size:20;not null;index:uniq_cfg,unique,priority:2" json:"zone_code" binding:"required"`
	LadderType LadderType      `gorm:"size:10;not null;default:'acreage';index:uniq_cfg,unique,priority:3" json:"ladder_type"`
	TierOrder  int             `gorm:"not null;index:uniq_cfg,unique,priority:4" json:"tier_order"`
	Threshold  decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"threshold"`
	Value      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"value"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLandLadderTier struct {
	ZoneCode      string          `json:"zone_code" binding:"required"`
	LadderType    LadderType      `json:"ladder_type" binding:"omitempty,oneof=acreage frontage"`
	TierOrder     int             `json:"tier_order" binding:"gte=0"`
	Threshold     decimal.Decimal `json:"threshold"`
	Value         decimal.Decimal `json:"value"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *LandLadderTier) BusinessKey() string {
	return fmt.Sprintf("%s#%s#%d", r.ZoneCode, r.LadderType, r.TierOrder)
}

func (r *LandLadderTier) KeyCondition() (string, []interface{}) {
	return "zone_code = ? AND ladder_type = ? AND tier_order = ?",
		[]interface{}{r.ZoneCode, r.LadderType, r.TierOrder}
}

func CreateLandLadderTier(ctx context.Context, input *NewLandLadderTier) (*LandLadderTier, error) {
	ladderType := input.LadderType
	if ladderType == "" {
		ladderType = LadderTypeAcreage
	}
	record := LandLadderTier{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		ZoneCode:       input.ZoneCode,
		LadderType:     ladderType,
		TierOrder:      input.TierOrder,
		Threshold:      input.Threshold,
		Value:          input.Value,
	}
	if err := CreateConfigRecord[LandLadderTier](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
