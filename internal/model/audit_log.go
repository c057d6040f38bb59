package model

import (
	"errors"
	"time"
)

// 审计结果
const (
	AuditOutcomeSucceeded = "succeeded"
	AuditOutcomeRejected  = "rejected" // 被审批规则拒绝,项目未修改
)

// AuditLogModel 审计日志数据模型
// 每条命令一行,成功与被拒绝的尝试都会记录
type AuditLogModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ProjectID  string    `gorm:"type:varchar(64);not null;index"`
	ActorID    string    `gorm:"type:varchar(64);not null;index"`
	Action     string    `gorm:"type:varchar(64);not null;index"`
	Level      string    `gorm:"type:varchar(32);index"` // 命令作用的审批级别
	FromStatus string    `gorm:"type:varchar(64)"`
	ToStatus   string    `gorm:"type:varchar(64)"`
	Outcome    string    `gorm:"type:varchar(16);not null;index"`
	ErrorKind  string    `gorm:"type:varchar(64)"`
	RequestID  string    `gorm:"type:varchar(64);index"`
	IP         string    `gorm:"type:varchar(45)"`
	UserAgent  string    `gorm:"type:text"`
	Details    []byte    `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	switch {
	case alm.ID == "":
		return errors.New("audit log ID is required")
	case alm.ProjectID == "":
		return errors.New("project ID is required")
	case alm.ActorID == "":
		return errors.New("actor ID is required")
	case alm.Action == "":
		return errors.New("action is required")
	}
	if alm.Outcome != AuditOutcomeSucceeded && alm.Outcome != AuditOutcomeRejected {
		return errors.New("outcome must be succeeded or rejected")
	}
	if alm.Outcome == AuditOutcomeRejected && alm.ErrorKind == "" {
		return errors.New("rejected entries require an error kind")
	}
	return nil
}
