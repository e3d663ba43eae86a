package utils

import (
	"context"

	"bitbucket.org/graniteval/assessor_backend/config"
)

// count records, using WHERE municipality_id = ? AND $condition
// municipality_id can be blank for admin user
func ResourceCountWhere[T any](ctx context.Context, municipalityId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if municipalityId != "" {
		dbCtx.Where("municipality_id = ?", municipalityId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
