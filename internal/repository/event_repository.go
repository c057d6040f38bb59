package repository

import (
	"github.com/mautops/project-approval/internal/model"
	"gorm.io/gorm"
)

// EventRepository 事件仓储接口
type EventRepository interface {
	Save(event *model.EventModel) error
	FindByProjectID(projectID string) ([]*model.EventModel, error)
	FindPending(limit int) ([]*model.EventModel, error)
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Save 保存事件
func (r *eventRepository) Save(event *model.EventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.Save(event).Error
}

// FindByProjectID 根据项目 ID 查找事件
func (r *eventRepository) FindByProjectID(projectID string) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&events).Error
	return events, err
}

// FindPending 查找待推送的事件
func (r *eventRepository) FindPending(limit int) ([]*model.EventModel, error) {
	var events []*model.EventModel
	query := r.db.Where("status = ?", model.EventStatusPending).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}
