package model

import (
	"errors"
	"strings"
	"time"
)

// EventModel 工作流事件数据模型(Webhook 发件箱)
type EventModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	ProjectID   string    `gorm:"type:varchar(64);not null;index"`
	Type        string    `gorm:"type:varchar(64);not null;index"`
	Data        []byte    `gorm:"type:jsonb;not null"`                         // 序列化后的事件数据
	Status      string    `gorm:"type:varchar(32);not null;default:'pending'"` // pending/success/failed
	RetryCount  int       `gorm:"type:int;default:0"`
	LastError   string    `gorm:"type:text"`
	DeliveredTo string    `gorm:"type:text"` // 已成功接收的 Webhook URL,换行分隔,重试时跳过
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// 事件推送状态
const (
	EventStatusPending = "pending"
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

// IsDeliveredTo 判断事件是否已推送到该 URL
func (em *EventModel) IsDeliveredTo(url string) bool {
	for _, u := range strings.Split(em.DeliveredTo, "\n") {
		if u == url {
			return true
		}
	}
	return false
}

// MarkDelivered 记录 URL 已成功接收
func (em *EventModel) MarkDelivered(url string) {
	if url == "" || em.IsDeliveredTo(url) {
		return
	}
	if em.DeliveredTo == "" {
		em.DeliveredTo = url
		return
	}
	em.DeliveredTo += "\n" + url
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.ProjectID == "" {
		return errors.New("project ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
