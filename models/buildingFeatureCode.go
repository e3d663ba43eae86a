package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BuildingFeatureCode prices discrete building features (fireplaces, porches,
// generators). Keyed by display text, which is what appears on the card.
type BuildingFeatureCode struct {
	ConfigBase
	TemporalRecord
	DisplayText string          `gorm:"size:100;not null;index:uniq_cfg,unique,priority:2" json:"display_text" binding:"required"`
	Points      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"points"`
	Description string          `gorm:"size:255" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBuildingFeatureCode struct {
	DisplayText   string          `json:"display_text" binding:"required"`
	Points        decimal.Decimal `json:"points"`
	Description   string          `json:"description"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *BuildingFeatureCode) BusinessKey() string { return r.DisplayText }

func (r *BuildingFeatureCode) KeyCondition() (string, []interface{}) {
	return "display_text = ?", []interface{}{r.DisplayText}
}

func CreateBuildingFeatureCode(ctx context.Context, input *NewBuildingFeatureCode) (*BuildingFeatureCode, error) {
	record := BuildingFeatureCode{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		DisplayText:    input.DisplayText,
		Points:         input.Points,
		Description:    input.Description,
	}
	if err := CreateConfigRecord[BuildingFeatureCode](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
