package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"gorm.io/gorm"
)

// History is the audit log. Every configuration fork/delete, year lock/unlock
// and year creation writes a row; unlock rows are the audit trail the admin
// unlock path depends on.
type History struct {
	ID             int       `gorm:"primary_key" json:"id"`
	MunicipalityId string    `gorm:"size:64;index;not null" json:"municipality_id"`
	ActionType     string    `gorm:"size:20;not null" json:"action_type" binding:"required"`
	Before         string    `gorm:"type:text" json:"before"`
	After          string    `gorm:"type:text" json:"after"`
	Description    string    `gorm:"type:text;not null" json:"description"`
	ReferenceID    int       `gorm:"index" json:"reference_id"`
	ReferenceType  string    `gorm:"size:255" json:"reference_type"`
	UserId         int       `gorm:"index;not null" json:"user_id"`
	UserName       string    `gorm:"size:100" json:"user_name"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateHistory writes one audit row inside the caller's transaction, pulling
// the acting municipality and user out of the transaction's context.
func CreateHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) error {
	return createHistory(tx, actionType, referenceId, referenceType, before, after, description)
}

func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var history History

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	// get municipalityId, userId, userName from context
	municipalityId, ok := utils.GetMunicipalityIdFromContext(ctx)
	if !ok || municipalityId == "" {
		return errors.New("municipality id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok {
		return errors.New("user name is required")
	}

	history.MunicipalityId = municipalityId
	history.ActionType = actionType
	history.Before = string(b)
	history.After = string(a)
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName

	return tx.Create(&history).Error
}

// GetHistories lists audit rows for a record, newest first.
func GetHistories(ctx context.Context, referenceType string, referenceId int, limit int) ([]*History, error) {
	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	var results []*History
	err = db.WithContext(ctx).
		Where("municipality_id = ? AND reference_type = ? AND reference_id = ?", municipalityId, referenceType, referenceId).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
