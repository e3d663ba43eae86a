package models

import (
	"context"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"gorm.io/gorm"
)

// ValidateConfigUnique enforces the business-key uniqueness invariant within
// (municipality, effective year), among active records. The composite unique
// index declared on the models is the safety net for concurrent writers; this
// check exists to return a typed error before the store rejects the row.
func ValidateConfigUnique[T any, PT interface {
	*T
	ConfigRecord
}](ctx context.Context, tx *gorm.DB, rec PT, exceptId int) error {

	cond, args := rec.KeyCondition()
	var model T
	dbCtx := tx.WithContext(ctx).Model(&model).
		Where("municipality_id = ?", rec.GetMunicipalityId()).
		Where("effective_year = ?", rec.Temporal().EffectiveYear).
		Where("is_active = ?", true).
		Where(cond, args...)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("id != ?", exceptId)
	}
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateConfigurationError{Key: rec.BusinessKey(), Year: rec.Temporal().EffectiveYear}
	}
	return nil
}

// CreateConfigRecord inserts a brand-new configuration item; forks are owned
// by the copy-on-write resolver. The target year must be unlocked, the
// business key unused for that year.
func CreateConfigRecord[T any, PT interface {
	*T
	ConfigRecord
}](ctx context.Context, rec PT) error {

	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return err
	}
	rec.SetMunicipalityId(municipalityId)
	if rec.Temporal().IsActive == nil {
		rec.Temporal().IsActive = utils.NewTrue()
	}

	if err := CheckYearNotLocked(ctx, municipalityId, rec.Temporal().EffectiveYear); err != nil {
		return err
	}

	db := config.GetDB()
	if err := ValidateConfigUnique[T, PT](ctx, db, rec, 0); err != nil {
		return err
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := createHistory(tx.WithContext(ctx), "*CREATE*", rec.GetID(), tableNameFor[T](tx), nil, rec, "created "+utils.GetTypeName[T]()+" "+rec.BusinessKey()); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	return utils.RemoveSnapshotCache(municipalityId)
}

func tableNameFor[T any](tx *gorm.DB) string {
	var model T
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(&model); err != nil {
		return utils.GetTypeName[T]()
	}
	return stmt.Table
}
