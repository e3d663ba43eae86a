package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WaterBodyLadderTier prices water frontage per named water body. Same shape
// as the zone ladder but keyed by the water body instead of the zone.
type WaterBodyLadderTier struct {
	ConfigBase
	TemporalRecord
	WaterBodyName string          `gorm:"size:100;not null;index:uniq_cfg,unique,priority:2" json:"water_body_name" binding:"required"`
	TierOrder     int             `gorm:"not null;index:uniq_cfg,unique,priority:3" json:"tier_order"`
	Threshold     decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"threshold"`
	Value         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"value"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWaterBodyLadderTier struct {
	WaterBodyName string          `json:"water_body_name" binding:"required"`
	TierOrder     int             `json:"tier_order" binding:"gte=0"`
	Threshold     decimal.Decimal `json:"threshold"`
	Value         decimal.Decimal `json:"value"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *WaterBodyLadderTier) BusinessKey() string {
	return fmt.Sprintf("%s#%d", r.WaterBodyName, r.TierOrder)
}

func (r *WaterBodyLadderTier) KeyCondition() (string, []interface{}) {
	return "water_body_name = ? AND tier_order = ?",
		[]interface{}{r.WaterBodyName, r.TierOrder}
}

func CreateWaterBodyLadderTier(ctx context.Context, input *NewWaterBodyLadderTier) (*WaterBodyLadderTier, error) {
	record := WaterBodyLadderTier{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		WaterBodyName:  input.WaterBodyName,
		TierOrder:      input.TierOrder,
		Threshold:      input.Threshold,
		Value:          input.Value,
	}
	if err := CreateConfigRecord[WaterBodyLadderTier](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
