package utils

import (
	"context"

	"bitbucket.org/graniteval/assessor_backend/config"
)

// YearLockChecker is implemented by models whose direct mutation must be gated
// on the lock state of their effective year.
type YearLockChecker interface {
	CheckYearLock(context.Context) error
}

/* DB fetching */

// fetch model from db
// (ctx's municipality_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, municipalityId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("municipality_id = ?", municipalityId)
	// preloading
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model and reject the fetch if its effective year is locked
func FetchModelForChange[T YearLockChecker](ctx context.Context, municipalityId string, id int, associations ...string) (*T, error) {
	result, err := FetchModel[T](ctx, municipalityId, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := (*result).CheckYearLock(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
