package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/integration"
	"github.com/mautops/project-approval/internal/metrics"
	"github.com/mautops/project-approval/internal/utils"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrActorRequired 请求未携带操作人
	ErrActorRequired = errors.New("actor is required")
	// ErrUnknownActor 身份服务中不存在该操作人
	ErrUnknownActor = errors.New("unknown actor")
	// ErrInvalidRejectionReason 驳回原因不在预设分类中
	ErrInvalidRejectionReason = &utils.ValidationError{Code: "INVALID_REJECTION_REASON", Message: "rejection reason is not a known category"}
	// ErrInvalidDocumentType 文档类型为空
	ErrInvalidDocumentType = &utils.ValidationError{Code: "INVALID_DOCUMENT_TYPE", Message: "document type cannot be empty"}
)

// ProjectService 项目审批服务接口
type ProjectService interface {
	Create(ctx context.Context, req *CreateProjectRequest) (*CreateProjectResponse, error)
	Get(ctx context.Context, id string) (*project.Project, error)
	Approve(ctx context.Context, id string, req *ApproveRequest) (*statemachine.Transition, error)
	Reject(ctx context.Context, id string, req *RejectRequest) (*statemachine.Transition, error)
	Resubmit(ctx context.Context, id string) (*statemachine.Transition, error)
	Cancel(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error)
	StartImplementation(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error)
	Complete(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error)
	SubmitDocument(ctx context.Context, id string, documentType string, req *SubmitDocumentRequest) (*project.Project, error)
	ResolveActor(ctx context.Context) (*project.User, error)
}

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name                     string              `json:"name" binding:"required"`
	Description              string              `json:"description"`
	Scope                    types.Scope         `json:"scope" binding:"required"`
	Budget                   float64             `json:"budget"`
	RequiresBudgetAllocation bool                `json:"requiresBudgetAllocation"`
	Department               *project.Department `json:"department"` // 为空时使用创建人所在部门
	RequiredDocuments        []string            `json:"requiredDocuments"`
}

// CreateProjectResponse 创建项目响应
type CreateProjectResponse struct {
	Project   *project.Project `json:"project"`
	Band      string           `json:"band"`
	BandColor string           `json:"bandColor"`
	Exempt    bool             `json:"exempt"`
}

// ApproveRequest 审批通过请求
type ApproveRequest struct {
	Level               types.Level `json:"level"` // 客户端看到的当前级别,与服务端不一致时返回冲突
	Comments            string      `json:"comments"`
	ComplianceProgramID string      `json:"complianceProgramId"`
}

// RejectRequest 驳回请求
type RejectRequest struct {
	Level           types.Level           `json:"level"`
	RejectionReason types.RejectionReason `json:"rejectionReason"`
	Comments        string                `json:"comments"`
}

// LifecycleRequest 取消、开始实施、完成请求
type LifecycleRequest struct {
	Reason string `json:"reason"`
}

// SubmitDocumentRequest 提交文档请求
type SubmitDocumentRequest struct {
	DocumentID string `json:"documentId"`
}

type projectService struct {
	manager     integration.ProjectManager
	identity    statemachine.IdentitySource
	auditLogSvc AuditLogService
	logger      logrus.FieldLogger
}

// NewProjectService 创建项目审批服务
func NewProjectService(manager integration.ProjectManager, identity statemachine.IdentitySource, auditLogSvc AuditLogService, logger logrus.FieldLogger) ProjectService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &projectService{
		manager:     manager,
		identity:    identity,
		auditLogSvc: auditLogSvc,
		logger:      logger.WithField("component", "project_service"),
	}
}

// ResolveActor 通过身份服务解析当前操作人
func (s *projectService) ResolveActor(ctx context.Context) (*project.User, error) {
	userID := GetUserID(ctx)
	if userID == "" {
		return nil, ErrActorRequired
	}
	if err := utils.ValidateID(userID); err != nil {
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, client.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownActor, userID)
		}
		return nil, fmt.Errorf("failed to resolve actor: %w", err)
	}
	return user, nil
}

// Create 创建项目
func (s *projectService) Create(ctx context.Context, req *CreateProjectRequest) (*CreateProjectResponse, error) {
	if err := utils.ValidateProjectName(req.Name); err != nil {
		return nil, err
	}
	if err := utils.ValidateBudget(req.Budget); err != nil {
		return nil, err
	}

	creator, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	department := project.Department{ID: creator.DepartmentID, Name: creator.DepartmentName}
	if req.Department != nil && req.Department.ID != "" {
		department = *req.Department
	}

	docs := make([]project.RequiredDocument, 0, len(req.RequiredDocuments))
	for _, docType := range req.RequiredDocuments {
		docType = strings.TrimSpace(docType)
		if docType == "" {
			return nil, ErrInvalidDocumentType
		}
		docs = append(docs, project.RequiredDocument{DocumentType: docType})
	}

	p, result, err := s.manager.Create(ctx, integration.CreateInput{
		Name:                     strings.TrimSpace(req.Name),
		Description:              req.Description,
		Scope:                    req.Scope,
		Budget:                   req.Budget,
		RequiresBudgetAllocation: req.RequiresBudgetAllocation,
		Department:               department,
		RequiredDocuments:        docs,
	}, *creator)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	metrics.RecordProjectCreated(string(p.Scope), result.Band.Name)
	s.logger.WithFields(logrus.Fields{
		"project_id": p.ID,
		"actor":      creator.ID,
		"band":       result.Band.Name,
		"status":     p.Status,
	}).Info("project created")

	s.audit(ctx, AuditEntry{
		ProjectID: p.ID,
		ActorID:   creator.ID,
		Action:    "create",
		ToStatus:  string(p.Status),
		Details: map[string]interface{}{
			"scope":  p.Scope,
			"budget": p.Budget,
			"band":   result.Band.Name,
		},
	})

	return &CreateProjectResponse{
		Project:   p,
		Band:      result.Band.Name,
		BandColor: result.Band.Color,
		Exempt:    result.Exempt,
	}, nil
}

// Get 获取项目详情
func (s *projectService) Get(ctx context.Context, id string) (*project.Project, error) {
	return s.manager.Get(ctx, id)
}

// Approve 审批通过
func (s *projectService) Approve(ctx context.Context, id string, req *ApproveRequest) (*statemachine.Transition, error) {
	actor, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	t, err := s.manager.Approve(ctx, id, statemachine.ApproveCommand{
		Actor:               *actor,
		Level:               req.Level,
		Comments:            req.Comments,
		ComplianceProgramID: req.ComplianceProgramID,
	})
	if err != nil {
		return nil, s.failed(ctx, err, AuditEntry{ProjectID: id, ActorID: actor.ID, Action: "approve", Level: string(req.Level)})
	}

	s.succeeded(ctx, t, "approve", id, actor.ID, map[string]interface{}{
		"comments":            req.Comments,
		"complianceProgramId": req.ComplianceProgramID,
		"final":               t.Final,
	})
	return t, nil
}

// Reject 驳回
func (s *projectService) Reject(ctx context.Context, id string, req *RejectRequest) (*statemachine.Transition, error) {
	if req.RejectionReason != "" && !req.RejectionReason.IsValid() {
		return nil, ErrInvalidRejectionReason
	}

	actor, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	t, err := s.manager.Reject(ctx, id, statemachine.RejectCommand{
		Actor:    *actor,
		Level:    req.Level,
		Reason:   req.RejectionReason,
		Comments: req.Comments,
	})
	if err != nil {
		return nil, s.failed(ctx, err, AuditEntry{ProjectID: id, ActorID: actor.ID, Action: "reject", Level: string(req.Level)})
	}

	s.succeeded(ctx, t, "reject", id, actor.ID, map[string]interface{}{
		"rejectionReason": t.Project.RejectionReason,
		"comments":        req.Comments,
	})
	return t, nil
}

// Resubmit 重新提交
func (s *projectService) Resubmit(ctx context.Context, id string) (*statemachine.Transition, error) {
	actor, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	t, err := s.manager.Resubmit(ctx, id, statemachine.ResubmitCommand{Actor: *actor})
	if err != nil {
		return nil, s.failed(ctx, err, AuditEntry{ProjectID: id, ActorID: actor.ID, Action: "resubmit"})
	}

	s.succeeded(ctx, t, "resubmit", id, actor.ID, nil)
	return t, nil
}

// Cancel 取消项目
func (s *projectService) Cancel(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error) {
	return s.lifecycle(ctx, id, "cancel", req, s.manager.Cancel)
}

// StartImplementation 开始实施
func (s *projectService) StartImplementation(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error) {
	return s.lifecycle(ctx, id, "start_implementation", req, s.manager.StartImplementation)
}

// Complete 完成项目
func (s *projectService) Complete(ctx context.Context, id string, req *LifecycleRequest) (*statemachine.Transition, error) {
	return s.lifecycle(ctx, id, "complete", req, s.manager.Complete)
}

type lifecycleFunc func(ctx context.Context, id string, cmd statemachine.LifecycleCommand) (*statemachine.Transition, error)

func (s *projectService) lifecycle(ctx context.Context, id string, action string, req *LifecycleRequest, fn lifecycleFunc) (*statemachine.Transition, error) {
	actor, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	reason := ""
	if req != nil {
		reason = req.Reason
	}

	t, err := fn(ctx, id, statemachine.LifecycleCommand{Actor: *actor, Reason: reason})
	if err != nil {
		return nil, s.failed(ctx, err, AuditEntry{ProjectID: id, ActorID: actor.ID, Action: action})
	}

	s.succeeded(ctx, t, action, id, actor.ID, map[string]interface{}{
		"reason": reason,
	})
	return t, nil
}

// SubmitDocument 标记文档已提交
func (s *projectService) SubmitDocument(ctx context.Context, id string, documentType string, req *SubmitDocumentRequest) (*project.Project, error) {
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		return nil, ErrInvalidDocumentType
	}

	actor, err := s.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	documentID := ""
	if req != nil {
		documentID = req.DocumentID
	}

	p, err := s.manager.SubmitDocument(ctx, id, documentType, documentID, *actor)
	if err != nil {
		return nil, s.failed(ctx, err, AuditEntry{ProjectID: id, ActorID: actor.ID, Action: "submit_document"})
	}

	s.logger.WithFields(logrus.Fields{
		"project_id":    id,
		"actor":         actor.ID,
		"document_type": documentType,
	}).Info("document submitted")
	s.audit(ctx, AuditEntry{
		ProjectID: id,
		ActorID:   actor.ID,
		Action:    "submit_document",
		ToStatus:  string(p.Status),
		Details: map[string]interface{}{
			"documentType": documentType,
			"documentId":   documentID,
		},
	})
	return p, nil
}

// failed 记录并审计被拒绝的命令,错误原样返回
func (s *projectService) failed(ctx context.Context, err error, entry AuditEntry) error {
	kind := statemachine.KindOf(err)
	log := s.logger.WithFields(logrus.Fields{
		"project_id": entry.ProjectID,
		"actor":      entry.ActorID,
		"action":     entry.Action,
	}).WithError(err)

	if kind == "" {
		log.Error("workflow command failed")
		return err
	}
	metrics.RecordWorkflowError(string(kind))
	log.WithField("kind", kind).Warn("workflow command rejected")

	entry.ErrorKind = string(kind)
	entry.Details = map[string]interface{}{"message": err.Error()}
	s.audit(ctx, entry)
	return err
}

func (s *projectService) succeeded(ctx context.Context, t *statemachine.Transition, action, id, actorID string, details map[string]interface{}) {
	metrics.RecordApprovalAction(action, string(t.Level))
	s.logger.WithFields(logrus.Fields{
		"project_id": id,
		"level":      t.Level,
		"actor":      actorID,
		"from":       t.From,
		"to":         t.To,
		"action":     t.Action,
	}).Info("workflow transition")

	entry := AuditEntry{
		ProjectID:  id,
		ActorID:    actorID,
		Action:     action,
		Level:      string(t.Level),
		FromStatus: string(t.From),
		ToStatus:   string(t.To),
	}
	if len(details) > 0 {
		entry.Details = details
	}
	s.audit(ctx, entry)
}

// audit 审计日志写入失败不影响命令结果
func (s *projectService) audit(ctx context.Context, entry AuditEntry) {
	if s.auditLogSvc == nil {
		return
	}
	if err := s.auditLogSvc.RecordAction(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("project_id", entry.ProjectID).Warn("failed to record audit log")
	}
}
