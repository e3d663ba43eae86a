package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Zone holds per-zone land rules. MinimumAcreage drives excess-acreage
// redistribution; ExcessAcreageRate prices the acreage moved onto the excess
// line, which is valued flat rather than off the ladder.
type Zone struct {
	ConfigBase
	TemporalRecord
	Code              string          `gorm:"size:20;not null;index:uniq_cfg,unique,priority:2" json:"code" binding:"required"`
	Description       string          `gorm:"size:255" json:"description"`
	MinimumAcreage    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"minimum_acreage"`
	ExcessAcreageRate decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"excess_acreage_rate"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewZone struct {
	Code              string           `json:"code" binding:"required"`
	Description       string           `json:"description"`
	MinimumAcreage    *decimal.Decimal `json:"minimum_acreage"`
	ExcessAcreageRate *decimal.Decimal `json:"excess_acreage_rate"`
	EffectiveYear     int              `json:"effective_year" binding:"required"`
}

func (r *Zone) BusinessKey() string { return r.Code }

func (r *Zone) KeyCondition() (string, []interface{}) {
	return "code = ?", []interface{}{r.Code}
}

func CreateZone(ctx context.Context, input *NewZone) (*Zone, error) {
	record := Zone{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Code:           input.Code,
		Description:    input.Description,
	}
	if input.MinimumAcreage != nil {
		record.MinimumAcreage = *input.MinimumAcreage
	}
	if input.ExcessAcreageRate != nil {
		record.ExcessAcreageRate = *input.ExcessAcreageRate
	}
	if err := CreateConfigRecord[Zone](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
