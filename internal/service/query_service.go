package service

import (
	"fmt"
	"time"

	"github.com/mautops/project-approval/internal/integration"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/pkg/authz"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/progress"
	"github.com/mautops/project-approval/pkg/project"
	"gorm.io/gorm"
)

// QueryService 查询服务接口
type QueryService interface {
	ListProjects(filter *ListProjectsFilter) ([]*project.Project, int64, error)
	ListPending(actor project.User, page, pageSize int) ([]*project.Project, int64, error)
	GetProgress(id string) (*progress.Summary, error)
	GetRecords(projectID string) ([]*ApprovalRecord, error)
	GetHistory(projectID string) ([]*StateHistory, error)
	GetWorkflowHistory(projectID string) ([]project.HistoryEntry, error)
}

// ListProjectsFilter 项目列表查询过滤器
type ListProjectsFilter struct {
	Status       *string
	Scope        *string
	CreatorID    *string
	DepartmentID *string
	CurrentLevel *string
	StartTime    *string
	EndTime      *string
	Page         int
	PageSize     int
	SortBy       string
	Order        string
}

// ApprovalRecord 审批记录
type ApprovalRecord struct {
	ID                  string `json:"id"`
	ProjectID           string `json:"projectId"`
	Level               string `json:"level"`
	Approver            string `json:"approver"`
	Result              string `json:"result"`
	ReasonCategory      string `json:"reasonCategory,omitempty"`
	Comment             string `json:"comment,omitempty"`
	ComplianceProgramID string `json:"complianceProgramId,omitempty"`
	Attempt             int    `json:"attempt"`
	CreatedAt           string `json:"createdAt"`
}

// StateHistory 状态历史
type StateHistory struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
	Operator   string `json:"operator"`
	CreatedAt  string `json:"createdAt"`
}

// queryService 查询服务实现
type queryService struct {
	projectRepo repository.ProjectRepository
	recordRepo  repository.ApprovalRecordRepository
	historyRepo repository.StateHistoryRepository
	builder     *chain.Builder
	resolver    *authz.Resolver
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB, builder *chain.Builder, resolver *authz.Resolver) QueryService {
	return &queryService{
		projectRepo: repository.NewProjectRepository(db),
		recordRepo:  repository.NewApprovalRecordRepository(db),
		historyRepo: repository.NewStateHistoryRepository(db),
		builder:     builder,
		resolver:    resolver,
	}
}

// ListProjects 列出项目
func (s *queryService) ListProjects(filter *ListProjectsFilter) ([]*project.Project, int64, error) {
	if filter == nil {
		filter = &ListProjectsFilter{}
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	models, total, err := s.projectRepo.FindByFilter(&repository.ProjectFilter{
		Status:       filter.Status,
		Scope:        filter.Scope,
		CreatorID:    filter.CreatorID,
		DepartmentID: filter.DepartmentID,
		CurrentLevel: filter.CurrentLevel,
		StartTime:    filter.StartTime,
		EndTime:      filter.EndTime,
		Page:         page,
		PageSize:     pageSize,
		SortBy:       filter.SortBy,
		Order:        filter.Order,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query projects: %w", err)
	}

	// 直接反序列化快照,避免 N+1 查询
	projects := make([]*project.Project, 0, len(models))
	for _, pm := range models {
		p, err := integration.FromModel(pm)
		if err != nil {
			continue // 跳过无法反序列化的项目
		}
		projects = append(projects, p)
	}

	return projects, total, nil
}

// pendingScanLimit 待办列表单次最多扫描的项目数
const pendingScanLimit = 1000

// ListPending 列出当前步骤可由 actor 处理的项目
func (s *queryService) ListPending(actor project.User, page, pageSize int) ([]*project.Project, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	filter := &repository.ProjectFilter{
		PendingOnly:      true,
		ExcludeCreatorID: &actor.ID,
		Page:             1,
		PageSize:         pendingScanLimit,
		SortBy:           "created_at",
		Order:            "asc",
	}
	levels, all := s.resolver.CandidateLevels(actor)
	if !all {
		if len(levels) == 0 {
			return []*project.Project{}, 0, nil
		}
		for _, level := range levels {
			filter.CurrentLevels = append(filter.CurrentLevels, string(level))
		}
	}

	models, _, err := s.projectRepo.FindByFilter(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query pending projects: %w", err)
	}

	actionable := make([]*project.Project, 0)
	for _, pm := range models {
		p, err := integration.FromModel(pm)
		if err != nil {
			continue
		}
		if s.resolver.CanAct(actor, p.CurrentStep(), p) {
			actionable = append(actionable, p)
		}
	}

	total := int64(len(actionable))
	start := (page - 1) * pageSize
	if start >= len(actionable) {
		return []*project.Project{}, total, nil
	}
	end := start + pageSize
	if end > len(actionable) {
		end = len(actionable)
	}
	return actionable[start:end], total, nil
}

// GetProgress 获取审批进度
func (s *queryService) GetProgress(id string) (*progress.Summary, error) {
	p, err := s.load(id)
	if err != nil {
		return nil, err
	}
	summary := progress.Summarize(p, s.builder.Table())
	return &summary, nil
}

// GetRecords 获取审批记录
func (s *queryService) GetRecords(projectID string) ([]*ApprovalRecord, error) {
	models, err := s.recordRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}

	records := make([]*ApprovalRecord, 0, len(models))
	for _, m := range models {
		records = append(records, &ApprovalRecord{
			ID:                  m.ID,
			ProjectID:           m.ProjectID,
			Level:               m.Level,
			Approver:            m.Approver,
			Result:              m.Result,
			ReasonCategory:      m.ReasonCategory,
			Comment:             m.Comment,
			ComplianceProgramID: m.ComplianceProgramID,
			Attempt:             m.Attempt,
			CreatedAt:           m.CreatedAt.Format(time.RFC3339),
		})
	}

	return records, nil
}

// GetHistory 获取状态历史
func (s *queryService) GetHistory(projectID string) ([]*StateHistory, error) {
	models, err := s.historyRepo.FindByProjectID(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	histories := make([]*StateHistory, 0, len(models))
	for _, m := range models {
		histories = append(histories, &StateHistory{
			ID:         m.ID,
			ProjectID:  m.ProjectID,
			FromStatus: m.FromStatus,
			ToStatus:   m.ToStatus,
			Action:     m.Action,
			Reason:     m.Reason,
			Operator:   m.Operator,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		})
	}

	return histories, nil
}

// GetWorkflowHistory 获取项目快照中的工作流历史
func (s *queryService) GetWorkflowHistory(projectID string) ([]project.HistoryEntry, error) {
	p, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	if p.WorkflowHistory == nil {
		return []project.HistoryEntry{}, nil
	}
	return p.WorkflowHistory, nil
}

func (s *queryService) load(id string) (*project.Project, error) {
	pm, err := s.projectRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	return integration.FromModel(pm)
}
