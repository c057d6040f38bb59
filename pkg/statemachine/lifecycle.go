package statemachine

import (
	"context"

	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// statusPendingAny 代表所有 pending_<level>_approval 状态
const statusPendingAny types.ProjectStatus = "pending_*"

// allowedTransitions 生命周期命令允许的状态迁移
// 审批链驱动的迁移(pending → approved 等)由 Approve/Reject/Resubmit 负责
var allowedTransitions = map[types.ProjectStatus][]types.ProjectStatus{
	types.StatusPlanning:         {types.StatusCancelled},
	statusPendingAny:             {types.StatusCancelled},
	types.StatusResubmitted:      {types.StatusCancelled},
	types.StatusRevisionRequired: {types.StatusResubmitted, types.StatusCancelled},
	types.StatusRejected:         {types.StatusResubmitted, types.StatusCancelled},
	types.StatusApproved:         {types.StatusImplementation, types.StatusCompleted, types.StatusCancelled},
	types.StatusImplementation:   {types.StatusCompleted, types.StatusCancelled},
	types.StatusCompleted:        {},
	types.StatusCancelled:        {},
}

func transitionKey(s types.ProjectStatus) types.ProjectStatus {
	if s.IsPending() {
		return statusPendingAny
	}
	return s
}

// CanTransition 判断生命周期状态迁移是否允许
func CanTransition(from, to types.ProjectStatus) bool {
	for _, allowed := range allowedTransitions[transitionKey(from)] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions 返回某状态允许迁移到的状态
func AllowedTransitions(from types.ProjectStatus) []types.ProjectStatus {
	allowed := allowedTransitions[transitionKey(from)]
	result := make([]types.ProjectStatus, len(allowed))
	copy(result, allowed)
	return result
}

// LifecycleCommand 生命周期命令(取消、开始实施、完成)
type LifecycleCommand struct {
	Actor  project.User
	Reason string
}

// Cancel 取消项目
func (m *Machine) Cancel(ctx context.Context, p *project.Project, cmd LifecycleCommand) (*Transition, error) {
	return m.moveTo(p, cmd, types.StatusCancelled, types.ActionProjectCancelled)
}

// StartImplementation 审批通过后开始实施
func (m *Machine) StartImplementation(ctx context.Context, p *project.Project, cmd LifecycleCommand) (*Transition, error) {
	return m.moveTo(p, cmd, types.StatusImplementation, types.ActionImplementationStarted)
}

// Complete 完成项目
func (m *Machine) Complete(ctx context.Context, p *project.Project, cmd LifecycleCommand) (*Transition, error) {
	return m.moveTo(p, cmd, types.StatusCompleted, types.ActionProjectCompleted)
}

func (m *Machine) moveTo(p *project.Project, cmd LifecycleCommand, to types.ProjectStatus, action string) (*Transition, error) {
	if p == nil {
		return nil, newError(KindInvalidTransition, "", "project is nil")
	}
	if cmd.Actor.ID != p.CreatorID && !m.resolver.IsTopTier(cmd.Actor) {
		return nil, newError(KindNotAuthorized, p.ID, "only the creator or a top tier user can move the project to %s", to)
	}
	if !CanTransition(p.Status, to) {
		return nil, newError(KindInvalidTransition, p.ID, "cannot move project from %s to %s", p.Status, to)
	}

	now := m.now()
	next := p.Clone()
	next.Status = to
	next.UpdatedAt = now

	metadata := map[string]interface{}{"from": string(p.Status)}
	if cmd.Reason != "" {
		metadata["reason"] = cmd.Reason
	}
	next.AppendHistory(action, cmd.Actor.ID, now, metadata)

	return &Transition{
		Project: next,
		Action:  action,
		From:    p.Status,
		To:      to,
	}, nil
}
