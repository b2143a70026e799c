package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/utils"
)

type AuditLog struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"size:64;not null;index" json:"company_id"`
	UserId       int       `gorm:"not null" json:"user_id"`
	Action       string    `gorm:"size:100;not null" json:"action"`
	ResourceType string    `gorm:"size:100;not null;index" json:"resource_type"`
	ResourceId   string    `gorm:"size:64;not null;index" json:"resource_id"`
	Before       []byte    `gorm:"type:json" json:"before"`
	After        []byte    `gorm:"type:json" json:"after"`
	Reason       *string   `gorm:"type:text" json:"reason"`
	CorrelationId string   `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LogAction writes an audit row. Best effort: a failure to log is reported
// to the logger but never rolls back the mutation it describes.
func LogAction(ctx context.Context, action, resourceType, resourceId string, before, after any, reason string) {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return
	}

	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	userId, _ := utils.GetUserIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var beforeJSON, afterJSON []byte
	var err error
	if before != nil {
		if beforeJSON, err = json.Marshal(before); err != nil {
			config.LogError(logger, "auditLog.go", "LogAction", "marshal before", before, err)
		}
	}
	if after != nil {
		if afterJSON, err = json.Marshal(after); err != nil {
			config.LogError(logger, "auditLog.go", "LogAction", "marshal after", after, err)
		}
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	row := AuditLog{
		CompanyId:     companyId,
		UserId:        userId,
		Action:        action,
		ResourceType:  resourceType,
		ResourceId:    resourceId,
		Before:        beforeJSON,
		After:         afterJSON,
		Reason:        reasonPtr,
		CorrelationId: correlationId,
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(logger, "auditLog.go", "LogAction", action, row, err)
	}
}
