package model

import (
	"errors"
	"time"
)

// ApprovalRecordModel 审批记录数据模型,每次通过或驳回一条
type ApprovalRecordModel struct {
	ID                  string    `gorm:"primaryKey;type:varchar(64)"`
	ProjectID           string    `gorm:"type:varchar(64);not null;index"`
	Level               string    `gorm:"type:varchar(32);not null"`
	Approver            string    `gorm:"type:varchar(64);not null;index"`
	Result              string    `gorm:"type:varchar(32);not null"` // approve/reject
	ReasonCategory      string    `gorm:"type:varchar(64)"`          // 驳回原因分类
	Comment             string    `gorm:"type:text"`
	ComplianceProgramID string    `gorm:"type:varchar(64)"`
	Attempt             int       `gorm:"type:int;not null;default:1"` // 第几次提交
	CreatedAt           time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (ApprovalRecordModel) TableName() string {
	return "approval_records"
}

// Validate 验证审批记录模型
func (arm *ApprovalRecordModel) Validate() error {
	if arm.ID == "" {
		return errors.New("record ID is required")
	}
	if arm.ProjectID == "" {
		return errors.New("project ID is required")
	}
	if arm.Level == "" {
		return errors.New("approval level is required")
	}
	if arm.Result != "approve" && arm.Result != "reject" {
		return errors.New("approval result must be approve or reject")
	}
	return nil
}
