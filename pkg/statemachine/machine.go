package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/project-approval/pkg/authz"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// ApproveCommand 审批通过命令
type ApproveCommand struct {
	Actor               project.User
	Level               types.Level // 可选,客户端认为的当前级别
	Comments            string
	ComplianceProgramID string
}

// RejectCommand 驳回命令
type RejectCommand struct {
	Actor    project.User
	Level    types.Level
	Reason   types.RejectionReason
	Comments string
}

// ResubmitCommand 重新提交命令
type ResubmitCommand struct {
	Actor project.User
}

// Transition 一次状态迁移的结果
type Transition struct {
	Project *project.Project    `json:"project"`
	Action  string              `json:"action"`
	Level   types.Level         `json:"level,omitempty"`
	From    types.ProjectStatus `json:"from"`
	To      types.ProjectStatus `json:"to"`
	Final   bool                `json:"final"` // 审批链是否全部完成
}

// Machine 审批状态机,唯一可以修改审批链的组件
// 所有命令在项目副本上执行,失败时入参项目保持不变
type Machine struct {
	builder    *chain.Builder
	resolver   *authz.Resolver
	compliance ComplianceSource
	now        func() time.Time
}

// Option 状态机选项
type Option func(*Machine)

// WithClock 设置时钟(测试用)
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New 创建审批状态机
func New(builder *chain.Builder, resolver *authz.Resolver, compliance ComplianceSource, opts ...Option) *Machine {
	m := &Machine{
		builder:    builder,
		resolver:   resolver,
		compliance: compliance,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolver 返回授权判断器
func (m *Machine) Resolver() *authz.Resolver {
	return m.resolver
}

// actionableStep 依次校验待审批步骤 授权 级别一致,未授权的操作人看不到当前级别
func (m *Machine) actionableStep(p *project.Project, actor project.User, expected types.Level) (*project.ApprovalStep, error) {
	step, err := m.currentStep(p)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(p, step, actor); err != nil {
		return nil, err
	}
	if expected != "" && expected != step.Level {
		e := newError(KindConcurrentModification, p.ID, "expected level %s but current level is %s", expected, step.Level)
		e.Level = step.Level
		return nil, e
	}
	return step, nil
}

// currentStep 校验前置条件 1: 存在待审批步骤
func (m *Machine) currentStep(p *project.Project) (*project.ApprovalStep, error) {
	if p == nil {
		return nil, newError(KindNoPendingStep, "", "project is nil")
	}
	if p.Status.IsTerminal() {
		return nil, newError(KindNoPendingStep, p.ID, "project is %s", p.Status)
	}
	if len(p.ApprovalChain) == 0 {
		return nil, newError(KindNoPendingStep, p.ID, "project has no approval chain")
	}

	step := p.CurrentStep()
	if step == nil {
		if p.IsHalted() {
			return nil, newError(KindNoPendingStep, p.ID, "approval chain is halted for revision")
		}
		return nil, newError(KindNoPendingStep, p.ID, "all approval levels are completed")
	}
	return step, nil
}

// authorize 校验前置条件 2: 操作人有权处理当前步骤
func (m *Machine) authorize(p *project.Project, step *project.ApprovalStep, actor project.User) error {
	if err := m.resolver.Explain(actor, step, p); err != nil {
		e := newError(KindNotAuthorized, p.ID, "%v", err)
		e.Level = step.Level
		return e
	}
	return nil
}

// checkCompliance 校验前置条件 3: 法务合规步骤必须关联合规方案
func (m *Machine) checkCompliance(ctx context.Context, p *project.Project, programID string) error {
	if programID == "" {
		e := newError(KindMissingComplianceProgram, p.ID, "a compliance program is required at the legal compliance step")
		e.Level = types.LevelLegalCompliance
		return e
	}

	if m.compliance == nil {
		return fmt.Errorf("compliance source is not configured")
	}

	programs, err := m.compliance.GetCompliantPrograms(ctx)
	if err != nil {
		return fmt.Errorf("failed to get compliance programs: %w", err)
	}

	for _, program := range programs {
		if program.ID != programID {
			continue
		}
		if !program.IsCompliant() {
			e := newError(KindNonCompliantProgram, p.ID, "program %q has non-compliant items: %v", programID, program.NonCompliantItems())
			e.Level = types.LevelLegalCompliance
			return e
		}
		return nil
	}

	e := newError(KindNonCompliantProgram, p.ID, "program %q was not found", programID)
	e.Level = types.LevelLegalCompliance
	return e
}

// Approve 审批通过当前步骤
func (m *Machine) Approve(ctx context.Context, p *project.Project, cmd ApproveCommand) (*Transition, error) {
	step, err := m.actionableStep(p, cmd.Actor, cmd.Level)
	if err != nil {
		return nil, err
	}

	level := step.Level
	if level == types.LevelLegalCompliance {
		if err := m.checkCompliance(ctx, p, cmd.ComplianceProgramID); err != nil {
			return nil, err
		}
	}

	if missing := p.MissingDocuments(); len(missing) > 0 {
		e := newError(KindDocumentsIncomplete, p.ID, "required documents are not submitted")
		e.Level = level
		e.MissingDocuments = missing
		return nil, e
	}

	now := m.now()
	next := p.Clone()
	idx := next.CurrentIndex()

	if level == types.LevelLegalCompliance {
		next.ComplianceProgramID = cmd.ComplianceProgramID
		next.AppendHistory(types.ActionComplianceAttached, cmd.Actor.ID, now, map[string]interface{}{
			"complianceProgramId": cmd.ComplianceProgramID,
		})
	}

	next.ApprovalChain[idx].Status = types.StepApproved
	next.ApprovalChain[idx].ApproverID = cmd.Actor.ID
	next.ApprovalChain[idx].ApprovedAt = &now
	next.ApprovalChain[idx].Comments = cmd.Comments
	next.AppendHistory(types.ActionLevelApproved, cmd.Actor.ID, now, map[string]interface{}{
		"level":    string(level),
		"comments": cmd.Comments,
	})

	t := &Transition{
		Project: next,
		Action:  types.ActionLevelApproved,
		Level:   level,
		From:    p.Status,
	}

	if upcoming := next.CurrentStep(); upcoming != nil {
		next.Status = types.PendingStatus(upcoming.Level)
	} else {
		next.Status = chain.TerminalStatus(next.Scope, m.builder.Options())
		next.AppendHistory(types.ActionProjectApproved, cmd.Actor.ID, now, map[string]interface{}{
			"finalLevel": string(level),
			"status":     string(next.Status),
		})
		t.Action = types.ActionProjectApproved
		t.Final = true
	}

	next.UpdatedAt = now
	t.To = next.Status
	return t, nil
}

// Reject 驳回当前步骤,已通过的步骤保留
func (m *Machine) Reject(ctx context.Context, p *project.Project, cmd RejectCommand) (*Transition, error) {
	step, err := m.actionableStep(p, cmd.Actor, cmd.Level)
	if err != nil {
		return nil, err
	}

	reason := cmd.Reason
	if reason == "" {
		reason = types.ReasonOther
	}
	if !reason.IsValid() {
		e := newError(KindInvalidRejectionReason, p.ID, "unknown rejection reason %q", reason)
		e.Level = step.Level
		return nil, e
	}

	now := m.now()
	level := step.Level
	next := p.Clone()
	idx := next.CurrentIndex()

	next.ApprovalChain[idx].Status = types.StepRejected
	next.ApprovalChain[idx].ApproverID = cmd.Actor.ID
	next.ApprovalChain[idx].ApprovedAt = &now
	next.ApprovalChain[idx].Comments = cmd.Comments
	next.Status = types.StatusRevisionRequired
	next.RejectionReason = string(reason)
	next.RejectionComments = cmd.Comments
	next.UpdatedAt = now
	next.AppendHistory(types.ActionProjectRejected, cmd.Actor.ID, now, map[string]interface{}{
		"rejectionPoint": string(level),
		"reasonCategory": string(reason),
		"comments":       cmd.Comments,
	})

	return &Transition{
		Project: next,
		Action:  types.ActionProjectRejected,
		Level:   level,
		From:    p.Status,
		To:      next.Status,
	}, nil
}

// Resubmit 创建人在驳回后重新提交,从驳回点继续审批
func (m *Machine) Resubmit(ctx context.Context, p *project.Project, cmd ResubmitCommand) (*Transition, error) {
	if p == nil {
		return nil, newError(KindInvalidResubmitState, "", "project is nil")
	}
	if cmd.Actor.ID != p.CreatorID {
		return nil, newError(KindInvalidResubmitState, p.ID, "only the project creator can resubmit")
	}
	if !p.Status.IsHalted() {
		return nil, newError(KindInvalidResubmitState, p.ID, "project in status %s cannot be resubmitted", p.Status)
	}

	idx := rejectionPoint(p)
	if idx < 0 {
		return nil, newError(KindInvalidResubmitState, p.ID, "project has no rejected step")
	}

	now := m.now()
	next := p.Clone()
	level := next.ApprovalChain[idx].Level

	next.ApprovalChain[idx].Status = types.StepPending
	next.ApprovalChain[idx].ApproverID = ""
	next.ApprovalChain[idx].ApprovedAt = nil
	next.ApprovalChain[idx].Comments = ""
	next.Status = types.StatusResubmitted
	next.UpdatedAt = now

	preserved := make([]string, 0)
	for _, l := range next.ApprovedLevels() {
		preserved = append(preserved, string(l))
	}
	next.AppendHistory(types.ActionProjectResubmitted, cmd.Actor.ID, now, map[string]interface{}{
		"rejectionPoint":     string(level),
		"preservedApprovals": preserved,
	})

	return &Transition{
		Project: next,
		Action:  types.ActionProjectResubmitted,
		Level:   level,
		From:    p.Status,
		To:      next.Status,
	}, nil
}

// rejectionPoint 优先使用最近一次驳回记录中的驳回点,找不到时退回到 rejected 步骤
func rejectionPoint(p *project.Project) int {
	if entry, ok := p.LastHistory(types.ActionProjectRejected); ok {
		if level, ok := entry.Metadata["rejectionPoint"].(string); ok {
			for i, step := range p.ApprovalChain {
				if string(step.Level) == level && step.Status == types.StepRejected {
					return i
				}
			}
		}
	}
	return p.RejectedIndex()
}
