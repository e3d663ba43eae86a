package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CurrentUseRate is the statutory per-acre rate band for a current-use
// category (farm land, forest land, unproductive). The calculator uses the
// band midpoint unless the land line carries an assessor override.
type CurrentUseRate struct {
	ConfigBase
	TemporalRecord
	Category  string          `gorm:"size:50;not null;index:uniq_cfg,unique,priority:2" json:"category" binding:"required"`
	MinRate   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"min_rate"`
	MaxRate   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"max_rate"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCurrentUseRate struct {
	Category      string          `json:"category" binding:"required"`
	MinRate       decimal.Decimal `json:"min_rate"`
	MaxRate       decimal.Decimal `json:"max_rate"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *CurrentUseRate) BusinessKey() string { return r.Category }

func (r *CurrentUseRate) KeyCondition() (string, []interface{}) {
	return "category = ?", []interface{}{r.Category}
}

func CreateCurrentUseRate(ctx context.Context, input *NewCurrentUseRate) (*CurrentUseRate, error) {
	record := CurrentUseRate{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Category:       input.Category,
		MinRate:        input.MinRate,
		MaxRate:        input.MaxRate,
	}
	if err := CreateConfigRecord[CurrentUseRate](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
