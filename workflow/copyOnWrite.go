package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WriteMode is the resolver's verdict on how an edit or delete against a
// year-versioned record must be stored.
type WriteMode string

const (
	// WriteDirect mutates the record in place: it already belongs to the
	// target year and that year is open.
	WriteDirect WriteMode = "direct"
	// WriteTwin redirects the edit onto the target year's existing version of
	// the same business key, leaving the inherited record untouched.
	WriteTwin WriteMode = "updatedExistingTarget"
	// WriteFork creates a new version at the target year and closes the
	// inherited record's validity there.
	WriteFork WriteMode = "copyOnWrite"
	// DeleteDirect deactivates a record born in the target year.
	DeleteDirect WriteMode = "directDelete"
	// DeleteTemporal ends an inherited record at the target year without a
	// successor; history years keep seeing it.
	DeleteTemporal WriteMode = "temporalDelete"
)

// DecideWrite resolves an edit (or delete, when forDelete) of a record whose
// version starts at recordYear, performed from the perspective of targetYear.
// Pure; the store-facing appliers below map its verdict onto transactions.
//
// The lock rules are asymmetric: a locked year rejects any change to its own
// records' values, but an inherited record MAY have its validity ended at an
// open later year even when its birth year is locked. Ending validity writes
// only chain bookkeeping (effectiveYearEnd, nextVersionId); the values every
// closed year sees stay frozen.
func DecideWrite(recordYear, targetYear int, recordYearLocked, targetYearLocked, twinExists bool, forDelete bool) (WriteMode, error) {

	if recordYear > targetYear {
		return "", fmt.Errorf("record effective year %d is past target year %d", recordYear, targetYear)
	}
	if targetYearLocked {
		return "", &models.YearLockedError{Year: targetYear}
	}

	if recordYear == targetYear {
		if recordYearLocked {
			// recordYear == targetYear, so this is unreachable while the
			// target-year check above holds; kept for the pure callers.
			return "", &models.YearLockedError{Year: recordYear}
		}
		if forDelete {
			return DeleteDirect, nil
		}
		return WriteDirect, nil
	}

	if forDelete {
		return DeleteTemporal, nil
	}
	if twinExists {
		return WriteTwin, nil
	}
	return WriteFork, nil
}

// acquireConfigLock serializes copy-on-write decisions for one business key
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped. Callers must pass the transaction
// handle, never the pooled *gorm.DB: the tx pins one connection, so the lock,
// the guarded writes and RELEASE_LOCK all share it.
func acquireConfigLock(tx *gorm.DB, municipalityId, table, businessKey string) error {
	lockName := lockNameFor(municipalityId, table, businessKey)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire config lock %s", lockName)
	}
	return nil
}

func releaseConfigLock(tx *gorm.DB, municipalityId, table, businessKey string) {
	lockName := lockNameFor(municipalityId, table, businessKey)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func lockNameFor(municipalityId, table, businessKey string) string {
	name := fmt.Sprintf("config:%s:%s:%s", municipalityId, table, businessKey)
	// MySQL caps lock names at 64 characters
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// ApplyConfigEdit stores an edit of record id as seen from targetYear. The
// mutate callback receives the record (or its fork/twin) with chain fields
// already set; it must change domain fields only.
func ApplyConfigEdit[T any, PT interface {
	*T
	models.ConfigRecord
}](ctx context.Context, id int, targetYear int, mutate func(PT)) (PT, WriteMode, error) {

	municipalityId, err := utils.RequireMunicipalityIdFromContext(ctx)
	if err != nil {
		return nil, "", err
	}

	db := config.GetDB()

	var row T
	rec := PT(&row)
	if err := db.WithContext(ctx).Where("municipality_id = ?", municipalityId).First(rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", utils.ErrorRecordNotFound
		}
		return nil, "", err
	}

	table := tableNameOf[T](db)
	logger := config.GetLogger()

	var result PT
	var mode WriteMode
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireConfigLock(tx, municipalityId, table, rec.BusinessKey()); err != nil {
			return err
		}
		defer releaseConfigLock(tx, municipalityId, table, rec.BusinessKey())

		recordYearLocked, err := models.IsYearLocked(ctx, municipalityId, rec.Temporal().EffectiveYear)
		if err != nil {
			return err
		}
		targetYearLocked, err := models.IsYearLocked(ctx, municipalityId, targetYear)
		if err != nil {
			return err
		}
		twin, err := findTwin[T, PT](ctx, tx, rec, targetYear)
		if err != nil {
			return err
		}

		mode, err = DecideWrite(rec.Temporal().EffectiveYear, targetYear, recordYearLocked, targetYearLocked, twin != nil, false)
		if err != nil {
			if locked, ok := err.(*models.YearLockedError); ok {
				locked.MunicipalityId = municipalityId
			}
			return err
		}

		logger.WithFields(logrus.Fields{
			"municipality_id": municipalityId,
			"table":           table,
			"business_key":    rec.BusinessKey(),
			"record_year":     rec.Temporal().EffectiveYear,
			"target_year":     targetYear,
			"mode":            mode,
		}).Info("config.write.resolve")

		switch mode {
		case WriteDirect:
			result, err = applyDirect[T, PT](ctx, tx, rec, table, mutate)
		case WriteTwin:
			result, err = applyDirect[T, PT](ctx, tx, twin, table, mutate)
		case WriteFork:
			result, err = applyFork[T, PT](ctx, tx, rec, table, targetYear, mutate)
		}
		return err
	})
	if err != nil {
		return nil, "", err
	}

	if err := utils.RemoveSnapshotCache(municipalityId); err != nil {
		logger.WithFields(logrus.Fields{"municipality_id": municipalityId}).Warn("config.write.cache_invalidate_failed")
	}
	return result, mode, nil
}

// ApplyConfigDelete removes record id as seen from targetYear. A record born
// in the target year is deactivated outright and its predecessor, if any,
// becomes the head again. An inherited record is ended at the target year:
// earlier years keep it, the target year and later stop seeing it.
func ApplyConfigDelete[T any, PT interface {
	*T
	models.ConfigRecord
}](ctx context.Context, id int, targetYear int) (WriteMode, error) {

	municipalityId, err := utils.RequireMunicipalityIdFromContext(ctx)
	if err != nil {
		return "", err
	}

	db := config.GetDB()

	var row T
	rec := PT(&row)
	if err := db.WithContext(ctx).Where("municipality_id = ?", municipalityId).First(rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.ErrorRecordNotFound
		}
		return "", err
	}

	table := tableNameOf[T](db)

	var mode WriteMode
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireConfigLock(tx, municipalityId, table, rec.BusinessKey()); err != nil {
			return err
		}
		defer releaseConfigLock(tx, municipalityId, table, rec.BusinessKey())

		recordYearLocked, err := models.IsYearLocked(ctx, municipalityId, rec.Temporal().EffectiveYear)
		if err != nil {
			return err
		}
		targetYearLocked, err := models.IsYearLocked(ctx, municipalityId, targetYear)
		if err != nil {
			return err
		}

		mode, err = DecideWrite(rec.Temporal().EffectiveYear, targetYear, recordYearLocked, targetYearLocked, false, true)
		if err != nil {
			if locked, ok := err.(*models.YearLockedError); ok {
				locked.MunicipalityId = municipalityId
			}
			return err
		}

		before := *rec

		switch mode {
		case DeleteDirect:
			if err := tx.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
				"IsActive":      false,
				"NextVersionId": nil,
			}).Error; err != nil {
				return err
			}
			if rec.Temporal().PreviousVersionId != nil {
				// the predecessor becomes the head again
				var prevRow T
				prev := PT(&prevRow)
				if err := tx.WithContext(ctx).First(prev, *rec.Temporal().PreviousVersionId).Error; err != nil {
					return err
				}
				if err := tx.WithContext(ctx).Model(prev).Updates(map[string]interface{}{
					"EffectiveYearEnd": nil,
					"NextVersionId":    nil,
				}).Error; err != nil {
					return err
				}
			}
		case DeleteTemporal:
			if err := tx.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
				"EffectiveYearEnd": targetYear,
			}).Error; err != nil {
				return err
			}
		}

		description := fmt.Sprintf("deleted %s %s for year %d", table, rec.BusinessKey(), targetYear)
		return models.CreateHistory(tx.WithContext(ctx), "*DELETE*", rec.GetID(), table, before, rec, description)
	})
	if err != nil {
		return "", err
	}

	return mode, utils.RemoveSnapshotCache(municipalityId)
}

// findTwin looks for the target year's own active version of the record's
// business key.
func findTwin[T any, PT interface {
	*T
	models.ConfigRecord
}](ctx context.Context, db *gorm.DB, rec PT, targetYear int) (PT, error) {

	cond, args := rec.KeyCondition()
	var row T
	twin := PT(&row)
	err := db.WithContext(ctx).
		Where("municipality_id = ?", rec.GetMunicipalityId()).
		Where("effective_year = ?", targetYear).
		Where("is_active = ?", true).
		Where("id != ?", rec.GetID()).
		Where(cond, args...).
		First(twin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return twin, nil
}

// applyDirect runs inside the caller's transaction.
func applyDirect[T any, PT interface {
	*T
	models.ConfigRecord
}](ctx context.Context, tx *gorm.DB, rec PT, table string, mutate func(PT)) (PT, error) {

	before := *rec
	mutate(rec)
	rec.Temporal().EffectiveYear = PT(&before).Temporal().EffectiveYear

	if err := models.ValidateConfigUnique[T, PT](ctx, tx, rec, rec.GetID()); err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Save(rec).Error; err != nil {
		return nil, err
	}
	description := fmt.Sprintf("updated %s %s", table, rec.BusinessKey())
	if err := models.CreateHistory(tx.WithContext(ctx), "*UPDATE*", rec.GetID(), table, before, rec, description); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyFork copies the record to the target year, links the chain and closes
// the old head. The old record's domain fields are never written; it only
// receives effectiveYearEnd and nextVersionId, which is what the lock
// asymmetry permits on closed years.
func applyFork[T any, PT interface {
	*T
	models.ConfigRecord
}](ctx context.Context, tx *gorm.DB, rec PT, table string, targetYear int, mutate func(PT)) (PT, error) {

	before := *rec

	forkRow := *rec
	fork := PT(&forkRow)
	fork.SetID(0)
	mutate(fork)
	oldId := rec.GetID()
	fork.Temporal().EffectiveYear = targetYear
	fork.Temporal().EffectiveYearEnd = nil
	fork.Temporal().PreviousVersionId = &oldId
	fork.Temporal().NextVersionId = nil
	fork.Temporal().IsActive = utils.NewTrue()

	if err := models.ValidateConfigUnique[T, PT](ctx, tx, fork, 0); err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Create(fork).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
		"EffectiveYearEnd": targetYear,
		"NextVersionId":    fork.GetID(),
	}).Error; err != nil {
		return nil, err
	}
	description := fmt.Sprintf("forked %s %s at year %d", table, fork.BusinessKey(), targetYear)
	if err := models.CreateHistory(tx.WithContext(ctx), "*UPDATE*", fork.GetID(), table, before, fork, description); err != nil {
		return nil, err
	}
	return fork, nil
}

func tableNameOf[T any](db *gorm.DB) string {
	var model T
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&model); err != nil {
		return utils.GetTypeName[T]()
	}
	return stmt.Table
}
