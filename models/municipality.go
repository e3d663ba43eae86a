package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Municipality is the tenant. The current-use discount curve lives here
// because it is statutory per municipality, not per zone: discount is 0 below
// CuMinAcreage, CuMaxDiscountPercent at or above CuMaxAcreage, linear between.
type Municipality struct {
	ID                   uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	Name                 string          `gorm:"size:100;not null" json:"name" binding:"required"`
	State                string          `gorm:"size:2;not null" json:"state" binding:"required"`
	Timezone             string          `gorm:"size:100;not null;default:'America/New_York'" json:"timezone"`
	CuMinAcreage         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"cu_min_acreage"`
	CuMaxAcreage         decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"cu_max_acreage"`
	CuMaxDiscountPercent decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"cu_max_discount_percent"`
	IsActive             *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMunicipality struct {
	Name                 string           `json:"name" binding:"required"`
	State                string           `json:"state" binding:"required"`
	Timezone             string           `json:"timezone"`
	CuMinAcreage         *decimal.Decimal `json:"cu_min_acreage"`
	CuMaxAcreage         *decimal.Decimal `json:"cu_max_acreage"`
	CuMaxDiscountPercent *decimal.Decimal `json:"cu_max_discount_percent"`
}

func (m *Municipality) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Municipality) StoreRedis() error {
	return config.SetRedisObject("Municipality:"+m.ID.String(), m, 0)
}

func (m *Municipality) RemoveRedis() error {
	return config.RemoveRedisKey("Municipality:" + m.ID.String())
}

func CreateMunicipality(ctx context.Context, input *NewMunicipality) (*Municipality, error) {

	timezone := input.Timezone
	if timezone == "" {
		timezone = "America/New_York"
	}
	municipality := Municipality{
		Name:                 input.Name,
		State:                input.State,
		Timezone:             timezone,
		CuMinAcreage:         utils.DereferencePtr(input.CuMinAcreage),
		CuMaxAcreage:         utils.DereferencePtr(input.CuMaxAcreage),
		CuMaxDiscountPercent: utils.DereferencePtr(input.CuMaxDiscountPercent),
		IsActive:             utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&municipality).Error; err != nil {
		return nil, err
	}
	return &municipality, nil
}

func GetMunicipalityById(ctx context.Context, id string) (*Municipality, error) {

	var result Municipality

	exists, err := config.GetRedisObject("Municipality:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		db := config.GetDB()
		// db query
		err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		// caching
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func UpdateMunicipality(ctx context.Context, id string, input *NewMunicipality) (*Municipality, error) {

	db := config.GetDB()
	var municipality Municipality
	if err := db.WithContext(ctx).Where("id = ?", id).First(&municipality).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{
		"Name":  input.Name,
		"State": input.State,
	}
	if input.Timezone != "" {
		updates["Timezone"] = input.Timezone
	}
	if input.CuMinAcreage != nil {
		updates["CuMinAcreage"] = *input.CuMinAcreage
	}
	if input.CuMaxAcreage != nil {
		updates["CuMaxAcreage"] = *input.CuMaxAcreage
	}
	if input.CuMaxDiscountPercent != nil {
		updates["CuMaxDiscountPercent"] = *input.CuMaxDiscountPercent
	}
	if err := db.WithContext(ctx).Model(&municipality).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := municipality.RemoveRedis(); err != nil {
		return nil, err
	}
	return &municipality, nil
}

func requireMunicipalityId(ctx context.Context) (string, error) {
	municipalityId, ok := utils.GetMunicipalityIdFromContext(ctx)
	if !ok || municipalityId == "" {
		return "", errors.New("municipality id is required")
	}
	return municipalityId, nil
}
