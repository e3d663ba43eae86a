package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// YearTotals is the denormalized rollup cached on an assessment year after a
// municipality-wide recalculation.
type YearTotals struct {
	ParcelCount      int             `json:"parcel_count"`
	LandValue        decimal.Decimal `json:"land_value"`
	CurrentUseCredit decimal.Decimal `json:"current_use_credit"`
	TotalValue       decimal.Decimal `json:"total_value"`
}

// AssessmentYear tracks one (municipality, year) pair. Lifecycle: created from
// a prior year (the source is locked, the new year starts unlocked and hidden),
// unhidden by staff when ready, locked again when the next year is created
// from it.
type AssessmentYear struct {
	ID             int         `gorm:"primary_key" json:"id"`
	MunicipalityId string      `gorm:"size:64;not null;index:uniq_muni_year,unique" json:"municipality_id"`
	Year           int         `gorm:"not null;index:uniq_muni_year,unique" json:"year"`
	IsLocked       *bool       `gorm:"not null;default:false" json:"is_locked"`
	IsHidden       *bool       `gorm:"not null;default:true" json:"is_hidden"`
	SourceYear     *int        `json:"source_year"`
	CachedTotals   *YearTotals `gorm:"serializer:json" json:"cached_totals"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsYearLocked reports the lock state for (municipality, year). A year with no
// row yet counts as unlocked: configuration can exist before the year record
// is migrated in.
func IsYearLocked(ctx context.Context, municipalityId string, year int) (bool, error) {
	db := config.GetDB()
	var result AssessmentYear
	err := db.WithContext(ctx).
		Where("municipality_id = ? AND year = ?", municipalityId, year).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return utils.DereferencePtr(result.IsLocked), nil
}

// CheckYearNotLocked returns a YearLockedError when the year is locked.
func CheckYearNotLocked(ctx context.Context, municipalityId string, year int) error {
	locked, err := IsYearLocked(ctx, municipalityId, year)
	if err != nil {
		return err
	}
	if locked {
		return &YearLockedError{MunicipalityId: municipalityId, Year: year}
	}
	return nil
}

func GetAssessmentYear(ctx context.Context, municipalityId string, year int) (*AssessmentYear, error) {
	db := config.GetDB()
	var result AssessmentYear
	err := db.WithContext(ctx).
		Where("municipality_id = ? AND year = ?", municipalityId, year).
		First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// ListAssessmentYears returns the municipality's years, newest first. Hidden
// years are included: visibility filtering is the caller's concern (staff see
// hidden years, the public site does not).
func ListAssessmentYears(ctx context.Context, municipalityId string) ([]*AssessmentYear, error) {
	db := config.GetDB()
	var results []*AssessmentYear
	err := db.WithContext(ctx).
		Where("municipality_id = ?", municipalityId).
		Order("year DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CreateInitialAssessmentYear bootstraps a municipality's first year. Every
// later year comes from the rollover path, which requires a source year.
func CreateInitialAssessmentYear(ctx context.Context, municipalityId string, year int) (*AssessmentYear, error) {
	assessmentYear := AssessmentYear{
		MunicipalityId: municipalityId,
		Year:           year,
		IsLocked:       utils.NewFalse(),
		IsHidden:       utils.NewFalse(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&assessmentYear).Error; err != nil {
		return nil, err
	}
	return &assessmentYear, nil
}

func LockYear(ctx context.Context, municipalityId string, year int) (*AssessmentYear, error) {
	return setYearLocked(ctx, municipalityId, year, true)
}

// UnlockYear re-opens a locked year. There is no ordinary staff path to this:
// it requires an admin context and is always audited, because tax bills may
// already be predicated on the locked configuration.
func UnlockYear(ctx context.Context, municipalityId string, year int) (*AssessmentYear, error) {
	isAdmin, _ := utils.GetIsAdminFromContext(ctx)
	if !isAdmin {
		return nil, errors.New("unlocking an assessment year requires an administrator")
	}
	return setYearLocked(ctx, municipalityId, year, false)
}

func setYearLocked(ctx context.Context, municipalityId string, year int, locked bool) (*AssessmentYear, error) {
	assessmentYear, err := GetAssessmentYear(ctx, municipalityId, year)
	if err != nil {
		return nil, err
	}

	before := *assessmentYear

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(assessmentYear).
		UpdateColumn("IsLocked", locked).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var actionType, description string
	if locked {
		actionType = "*LOCK*"
		description = "locked assessment year"
	} else {
		actionType = "*UNLOCK*"
		description = "unlocked assessment year"
	}
	if err := createHistory(tx.WithContext(ctx), actionType, assessmentYear.ID, "assessment_years", &before, assessmentYear, description); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return assessmentYear, nil
}

// SetYearVisibility unhides (or re-hides) a year for the public site.
func SetYearVisibility(ctx context.Context, municipalityId string, year int, hidden bool) (*AssessmentYear, error) {
	assessmentYear, err := GetAssessmentYear(ctx, municipalityId, year)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(assessmentYear).
		UpdateColumn("IsHidden", hidden).Error; err != nil {
		return nil, err
	}
	return assessmentYear, nil
}

// UpdateYearCachedTotals stores the rollups produced by a recalculation run.
func UpdateYearCachedTotals(ctx context.Context, municipalityId string, year int, totals *YearTotals) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&AssessmentYear{}).
		Where("municipality_id = ? AND year = ?", municipalityId, year).
		Update("cached_totals", totals).Error
}
