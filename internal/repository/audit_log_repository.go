package repository

import (
	"github.com/mautops/project-approval/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	FindByActor(actorID string) ([]*model.AuditLogModel, error)
	FindByProjectID(projectID string) ([]*model.AuditLogModel, error)
	FindByFilter(filter *AuditLogFilter) ([]*model.AuditLogModel, int64, error)
}

// AuditLogFilter 审计日志查询过滤器
type AuditLogFilter struct {
	ProjectID *string
	ActorID   *string
	Action    *string
	Level     *string
	Outcome   *string
	StartTime *string
	EndTime   *string
	Page      int
	PageSize  int
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 保存审计日志
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.Create(log).Error
}

// FindByActor 查找操作人的审计日志
func (r *auditLogRepository) FindByActor(actorID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("actor_id = ?", actorID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByProjectID 查找项目的审计日志,最新的在前
func (r *auditLogRepository) FindByProjectID(projectID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByFilter 根据过滤条件查询审计日志
func (r *auditLogRepository) FindByFilter(filter *AuditLogFilter) ([]*model.AuditLogModel, int64, error) {
	if filter == nil {
		filter = &AuditLogFilter{}
	}

	query := r.db.Model(&model.AuditLogModel{})
	for column, value := range map[string]*string{
		"project_id": filter.ProjectID,
		"actor_id":   filter.ActorID,
		"action":     filter.Action,
		"level":      filter.Level,
		"outcome":    filter.Outcome,
	} {
		if value != nil {
			query = query.Where(column+" = ?", *value)
		}
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var logs []*model.AuditLogModel
	err := query.Order("created_at DESC").Find(&logs).Error
	return logs, total, err
}
