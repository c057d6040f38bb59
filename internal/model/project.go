package model

import (
	"errors"
	"time"
)

// ProjectModel 项目数据模型
// Data 保存完整的项目快照(含审批链和工作流历史),其余字段用于过滤和排序
type ProjectModel struct {
	ID                       string     `gorm:"primaryKey;type:varchar(64)"`
	Name                     string     `gorm:"type:varchar(255);not null"`
	Scope                    string     `gorm:"type:varchar(32);not null;index"`
	Budget                   float64    `gorm:"not null"`
	RequiresBudgetAllocation bool       `gorm:"not null;default:false"`
	DepartmentID             string     `gorm:"type:varchar(64);index"`
	DepartmentName           string     `gorm:"type:varchar(128)"`
	CreatorID                string     `gorm:"type:varchar(64);not null;index"`
	Status                   string     `gorm:"type:varchar(64);not null;index"` // 项目状态
	CurrentLevel             string     `gorm:"type:varchar(32);index"`          // 当前审批级别
	ComplianceProgramID      string     `gorm:"type:varchar(64)"`
	Version                  int        `gorm:"type:int;not null;default:1"` // 乐观锁版本号
	Data                     []byte     `gorm:"type:jsonb;not null"`         // 序列化后的 Project 对象
	CreatedAt                time.Time  `gorm:"not null;index"`
	UpdatedAt                time.Time  `gorm:"not null;index"`
	ApprovedAt               *time.Time `gorm:"index"` // 审批链完成时间
}

// TableName 指定表名
func (ProjectModel) TableName() string {
	return "projects"
}

// Validate 验证项目模型
func (pm *ProjectModel) Validate() error {
	if pm.ID == "" {
		return errors.New("project ID is required")
	}
	if pm.Scope == "" {
		return errors.New("project scope is required")
	}
	if pm.CreatorID == "" {
		return errors.New("creator ID is required")
	}
	if pm.Status == "" {
		return errors.New("project status is required")
	}
	if pm.Budget < 0 {
		return errors.New("budget must not be negative")
	}
	if len(pm.Data) == 0 {
		return errors.New("project data is required")
	}
	return nil
}
