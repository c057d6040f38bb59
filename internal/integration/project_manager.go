package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/mautops/project-approval/pkg/types"
	"gorm.io/gorm"
)

// ErrDocumentNotRequired 项目不需要该类型文档
var ErrDocumentNotRequired = errors.New("document type is not required for project")

// CreateInput 创建项目参数
type CreateInput struct {
	Name                     string
	Description              string
	Scope                    types.Scope
	Budget                   float64
	RequiresBudgetAllocation bool
	Department               project.Department
	RequiredDocuments        []project.RequiredDocument
}

// ProjectManager 项目审批管理器,负责加锁、事务和持久化
type ProjectManager interface {
	Create(ctx context.Context, input CreateInput, creator project.User) (*project.Project, *chain.Result, error)
	Get(ctx context.Context, id string) (*project.Project, error)
	Approve(ctx context.Context, id string, cmd statemachine.ApproveCommand) (*statemachine.Transition, error)
	Reject(ctx context.Context, id string, cmd statemachine.RejectCommand) (*statemachine.Transition, error)
	Resubmit(ctx context.Context, id string, cmd statemachine.ResubmitCommand) (*statemachine.Transition, error)
	Cancel(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error)
	StartImplementation(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error)
	Complete(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error)
	SubmitDocument(ctx context.Context, id string, documentType string, documentID string, actor project.User) (*project.Project, error)
}

// ManagerOption 管理器选项
type ManagerOption func(*dbProjectManager)

// WithClock 设置时钟
func WithClock(now func() time.Time) ManagerOption {
	return func(m *dbProjectManager) {
		m.now = now
	}
}

// WithLocker 共享按项目加锁器
func WithLocker(locker *KeyedLocker) ManagerOption {
	return func(m *dbProjectManager) {
		m.locker = locker
	}
}

// dbProjectManager 基于数据库的项目管理器
type dbProjectManager struct {
	db        *gorm.DB
	builder   *chain.Builder
	machine   *statemachine.Machine
	documents statemachine.DocumentSource
	events    EventHandler
	locker    *KeyedLocker
	now       func() time.Time
}

// NewProjectManager 创建项目管理器
// documents 为空时使用项目中保存的文档状态,events 为空时不产生事件
func NewProjectManager(db *gorm.DB, builder *chain.Builder, machine *statemachine.Machine, documents statemachine.DocumentSource, events EventHandler, opts ...ManagerOption) ProjectManager {
	m := &dbProjectManager{
		db:        db,
		builder:   builder,
		machine:   machine,
		documents: documents,
		events:    events,
		locker:    NewKeyedLocker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create 创建项目并生成审批链
func (m *dbProjectManager) Create(ctx context.Context, input CreateInput, creator project.User) (*project.Project, *chain.Result, error) {
	if !input.Scope.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", policy.ErrInvalidScope, input.Scope)
	}
	if creator.ID == "" {
		return nil, nil, errors.New("creator is required")
	}

	now := m.now()
	docs := make([]project.RequiredDocument, len(input.RequiredDocuments))
	copy(docs, input.RequiredDocuments)

	p := &project.Project{
		ID:                       uuid.New().String(),
		Name:                     input.Name,
		Description:              input.Description,
		Scope:                    input.Scope,
		Budget:                   input.Budget,
		RequiresBudgetAllocation: input.RequiresBudgetAllocation,
		Department:               input.Department,
		CreatorID:                creator.ID,
		Status:                   types.StatusPlanning,
		RequiredDocuments:        docs,
		WorkflowHistory:          []project.HistoryEntry{},
		Version:                  1,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	result, err := m.builder.Build(p, creator)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build approval chain: %w", err)
	}
	p.ApprovalChain = result.Steps
	p.Status = result.Status
	p.AppendHistory(types.ActionProjectCreated, creator.ID, now, map[string]interface{}{
		"band":        result.Band.Name,
		"chainLength": len(result.Steps),
		"status":      string(result.Status),
	})
	if result.Exempt {
		p.AppendHistory(types.ActionProjectAutoApproved, creator.ID, now, map[string]interface{}{
			"roleLevel": creator.RoleLevel,
		})
	}

	pm, err := ToModel(p)
	if err != nil {
		return nil, nil, err
	}
	if p.IsChainComplete() {
		pm.ApprovedAt = &now
	}

	var em *model.EventModel
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewProjectRepository(tx).Create(pm); err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}
		if err := m.saveStateHistory(tx, p.ID, "", p.Status, types.ActionProjectCreated, "", creator.ID); err != nil {
			return err
		}
		em, err = m.saveEvent(tx, &Event{
			Type:      EventProjectCreated,
			ProjectID: p.ID,
			To:        p.Status,
			ActorID:   creator.ID,
			Project:   p,
			Time:      now,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	m.dispatch(em)
	return p, result, nil
}

// Get 获取项目
func (m *dbProjectManager) Get(ctx context.Context, id string) (*project.Project, error) {
	pm, err := repository.NewProjectRepository(m.db.WithContext(ctx)).FindByID(id)
	if err != nil {
		return nil, err
	}
	return FromModel(pm)
}

// Approve 当前级别审批人同意
func (m *dbProjectManager) Approve(ctx context.Context, id string, cmd statemachine.ApproveCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		if err := m.refreshDocuments(ctx, p); err != nil {
			return nil, err
		}
		return m.machine.Approve(ctx, p, cmd)
	}, func(p *project.Project, t *statemachine.Transition) *model.ApprovalRecordModel {
		return m.newRecord(p, t, cmd.Actor.ID, "approve", "", cmd.Comments, cmd.ComplianceProgramID)
	}, cmd.Comments)
}

// Reject 当前级别审批人驳回
func (m *dbProjectManager) Reject(ctx context.Context, id string, cmd statemachine.RejectCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		return m.machine.Reject(ctx, p, cmd)
	}, func(p *project.Project, t *statemachine.Transition) *model.ApprovalRecordModel {
		return m.newRecord(p, t, cmd.Actor.ID, "reject", t.Project.RejectionReason, cmd.Comments, "")
	}, cmd.Comments)
}

// Resubmit 提交人修改后重新提交
func (m *dbProjectManager) Resubmit(ctx context.Context, id string, cmd statemachine.ResubmitCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		return m.machine.Resubmit(ctx, p, cmd)
	}, nil, "")
}

// Cancel 取消项目
func (m *dbProjectManager) Cancel(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		return m.machine.Cancel(ctx, p, cmd)
	}, nil, cmd.Reason)
}

// StartImplementation 审批通过后开始实施
func (m *dbProjectManager) StartImplementation(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		return m.machine.StartImplementation(ctx, p, cmd)
	}, nil, cmd.Reason)
}

// Complete 项目完成
func (m *dbProjectManager) Complete(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error) {
	return m.mutate(ctx, id, cmd.Actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		return m.machine.Complete(ctx, p, cmd)
	}, nil, cmd.Reason)
}

// SubmitDocument 标记项目文档已提交(未接入文档服务时使用)
func (m *dbProjectManager) SubmitDocument(ctx context.Context, id string, documentType string, documentID string, actor project.User) (*project.Project, error) {
	t, err := m.mutate(ctx, id, actor.ID, func(p *project.Project) (*statemachine.Transition, error) {
		if actor.ID != p.CreatorID && !m.machine.Resolver().IsTopTier(actor) {
			return nil, statemachine.NewError(statemachine.KindNotAuthorized, p.ID, "only the creator or a top tier user can submit documents")
		}
		if p.Status.IsTerminal() {
			return nil, statemachine.NewError(statemachine.KindInvalidTransition, p.ID, "project is %s", p.Status)
		}

		next := p.Clone()
		found := false
		for i := range next.RequiredDocuments {
			if strings.EqualFold(next.RequiredDocuments[i].DocumentType, documentType) {
				next.RequiredDocuments[i].IsSubmitted = true
				next.RequiredDocuments[i].DocumentID = documentID
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotRequired, documentType)
		}

		now := m.now()
		next.UpdatedAt = now
		next.AppendHistory(types.ActionDocumentSubmitted, actor.ID, now, map[string]interface{}{
			"documentType": documentType,
			"documentId":   documentID,
		})
		return &statemachine.Transition{
			Project: next,
			Action:  types.ActionDocumentSubmitted,
			From:    p.Status,
			To:      next.Status,
		}, nil
	}, nil, "")
	if err != nil {
		return nil, err
	}
	return t.Project, nil
}

type stepFunc func(p *project.Project) (*statemachine.Transition, error)

type recordFunc func(p *project.Project, t *statemachine.Transition) *model.ApprovalRecordModel

// mutate 在项目锁和事务内执行一次状态变更,版本号不匹配时返回 ConcurrentModification
func (m *dbProjectManager) mutate(ctx context.Context, id string, actorID string, step stepFunc, record recordFunc, reason string) (*statemachine.Transition, error) {
	unlock := m.locker.Lock(id)
	defer unlock()

	var t *statemachine.Transition
	var em *model.EventModel
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projectRepo := repository.NewProjectRepository(tx)
		current, err := projectRepo.FindByID(id)
		if err != nil {
			return err
		}
		p, err := FromModel(current)
		if err != nil {
			return err
		}

		t, err = step(p)
		if err != nil {
			return err
		}

		next := t.Project
		next.Version = current.Version + 1
		pm, err := ToModel(next)
		if err != nil {
			return err
		}
		pm.ApprovedAt = current.ApprovedAt
		if t.Final {
			at := next.UpdatedAt
			pm.ApprovedAt = &at
		}

		if err := projectRepo.UpdateWithVersion(pm, current.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return statemachine.NewError(statemachine.KindConcurrentModification, id, "project was modified by another request")
			}
			return fmt.Errorf("failed to update project: %w", err)
		}

		if record != nil {
			if rec := record(p, t); rec != nil {
				if err := repository.NewApprovalRecordRepository(tx).Save(rec); err != nil {
					return fmt.Errorf("failed to save approval record: %w", err)
				}
			}
		}

		if err := m.saveStateHistory(tx, id, t.From, t.To, t.Action, reason, actorID); err != nil {
			return err
		}

		em, err = m.saveEvent(tx, &Event{
			Type:      EventTypeForAction(t.Action),
			ProjectID: id,
			Level:     t.Level,
			From:      t.From,
			To:        t.To,
			ActorID:   actorID,
			Project:   next,
			Time:      next.UpdatedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.dispatch(em)
	return t, nil
}

// refreshDocuments 从文档服务同步文档状态
func (m *dbProjectManager) refreshDocuments(ctx context.Context, p *project.Project) error {
	if m.documents == nil {
		return nil
	}
	docs, err := m.documents.GetRequiredDocuments(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get required documents: %w", err)
	}
	if docs == nil {
		docs = []project.RequiredDocument{}
	}
	p.RequiredDocuments = docs
	return nil
}

func (m *dbProjectManager) newRecord(p *project.Project, t *statemachine.Transition, approver, result, reasonCategory, comment, programID string) *model.ApprovalRecordModel {
	attempt := 1
	for _, entry := range p.WorkflowHistory {
		if entry.Action == types.ActionProjectResubmitted {
			attempt++
		}
	}
	return &model.ApprovalRecordModel{
		ID:                  uuid.New().String(),
		ProjectID:           p.ID,
		Level:               string(t.Level),
		Approver:            approver,
		Result:              result,
		ReasonCategory:      reasonCategory,
		Comment:             comment,
		ComplianceProgramID: programID,
		Attempt:             attempt,
		CreatedAt:           m.now(),
	}
}

// saveStateHistory 保存状态历史到数据库
func (m *dbProjectManager) saveStateHistory(tx *gorm.DB, projectID string, from, to types.ProjectStatus, action, reason, operator string) error {
	history := &model.StateHistoryModel{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Action:     action,
		Reason:     reason,
		Operator:   operator,
		CreatedAt:  m.now(),
	}
	if err := repository.NewStateHistoryRepository(tx).Save(history); err != nil {
		return fmt.Errorf("failed to save state history: %w", err)
	}
	return nil
}

// saveEvent 在事务内写入发件箱
func (m *dbProjectManager) saveEvent(tx *gorm.DB, evt *Event) (*model.EventModel, error) {
	if m.events == nil {
		return nil, nil
	}
	em, err := NewEventModel(evt)
	if err != nil {
		return nil, err
	}
	if err := repository.NewEventRepository(tx).Save(em); err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}
	return em, nil
}

func (m *dbProjectManager) dispatch(em *model.EventModel) {
	if m.events != nil && em != nil {
		m.events.Dispatch(em)
	}
}
