package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/internal/repository"
)

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, entry AuditEntry) error
	List(filter *repository.AuditLogFilter) ([]*AuditLog, int64, error)
}

// AuditEntry 一条待写入的审计记录
// ErrorKind 非空表示命令被审批规则拒绝
type AuditEntry struct {
	ProjectID  string
	ActorID    string
	Action     string
	Level      string
	FromStatus string
	ToStatus   string
	ErrorKind  string
	Details    interface{}
}

// AuditLog 审计日志
type AuditLog struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	Level      string          `json:"level,omitempty"`
	FromStatus string          `json:"fromStatus,omitempty"`
	ToStatus   string          `json:"toStatus,omitempty"`
	Outcome    string          `json:"outcome"`
	ErrorKind  string          `json:"errorKind,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"createdAt"`
}

type auditLogService struct {
	auditRepo repository.AuditLogRepository
	now       func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
		now:       time.Now,
	}
}

// RecordAction 记录一条命令的审计日志,请求信息从 context 读取
func (s *auditLogService) RecordAction(ctx context.Context, entry AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return err
		}
	}

	outcome := model.AuditOutcomeSucceeded
	if entry.ErrorKind != "" {
		outcome = model.AuditOutcomeRejected
	}

	return s.auditRepo.Save(&model.AuditLogModel{
		ID:         uuid.New().String(),
		ProjectID:  entry.ProjectID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		Level:      entry.Level,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		Outcome:    outcome,
		ErrorKind:  entry.ErrorKind,
		RequestID:  GetRequestID(ctx),
		IP:         GetClientIP(ctx),
		UserAgent:  GetUserAgent(ctx),
		Details:    details,
		CreatedAt:  s.now(),
	})
}

// List 查询审计日志
func (s *auditLogService) List(filter *repository.AuditLogFilter) ([]*AuditLog, int64, error) {
	logs, total, err := s.auditRepo.FindByFilter(filter)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*AuditLog, 0, len(logs))
	for _, l := range logs {
		entry := &AuditLog{
			ID:         l.ID,
			ProjectID:  l.ProjectID,
			ActorID:    l.ActorID,
			Action:     l.Action,
			Level:      l.Level,
			FromStatus: l.FromStatus,
			ToStatus:   l.ToStatus,
			Outcome:    l.Outcome,
			ErrorKind:  l.ErrorKind,
			RequestID:  l.RequestID,
			IP:         l.IP,
			UserAgent:  l.UserAgent,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
		if len(l.Details) > 0 && json.Valid(l.Details) {
			entry.Details = json.RawMessage(l.Details)
		}
		result = append(result, entry)
	}
	return result, total, nil
}
