package statemachine_test

import (
	"context"
	"testing"

	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCanTransition 测试生命周期迁移表
func TestCanTransition(t *testing.T) {
	assert.True(t, statemachine.CanTransition(types.PendingStatus(types.LevelFinance), types.StatusCancelled))
	assert.True(t, statemachine.CanTransition(types.StatusApproved, types.StatusImplementation))
	assert.True(t, statemachine.CanTransition(types.StatusApproved, types.StatusCompleted))
	assert.True(t, statemachine.CanTransition(types.StatusImplementation, types.StatusCompleted))
	assert.True(t, statemachine.CanTransition(types.StatusRevisionRequired, types.StatusResubmitted))

	assert.False(t, statemachine.CanTransition(types.StatusCompleted, types.StatusCancelled))
	assert.False(t, statemachine.CanTransition(types.StatusCancelled, types.StatusApproved))
	assert.False(t, statemachine.CanTransition(types.PendingStatus(types.LevelFinance), types.StatusCompleted))
	assert.Empty(t, statemachine.AllowedTransitions(types.StatusCompleted))
}

// TestLifecycle_ApprovedToCompleted 审批通过后开始实施并完成
func TestLifecycle_ApprovedToCompleted(t *testing.T) {
	f := newFixture(defaultCompliance())
	p := walkToCompletion(t, f, f.newProject(t))

	tr, err := f.machine.StartImplementation(context.Background(), p, statemachine.LifecycleCommand{Actor: creator})
	require.NoError(t, err)
	assert.Equal(t, types.StatusImplementation, tr.To)
	assert.Equal(t, types.StatusApproved, tr.From)

	_, err = f.machine.Cancel(context.Background(), tr.Project, statemachine.LifecycleCommand{Actor: executive})
	assert.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	tr, err = f.machine.Complete(context.Background(), tr.Project, statemachine.LifecycleCommand{Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, tr.Project.Status)
	entry, ok := tr.Project.LastHistory(types.ActionProjectCompleted)
	require.True(t, ok)
	assert.Equal(t, admin.ID, entry.ActorID)

	_, err = f.machine.Cancel(context.Background(), tr.Project, statemachine.LifecycleCommand{Actor: creator})
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = f.machine.Approve(context.Background(), tr.Project, statemachine.ApproveCommand{Actor: admin})
	assert.ErrorIs(t, err, statemachine.ErrNoPendingStep)
}

// TestLifecycle_CancelPendingProject 取消审批中的项目
func TestLifecycle_CancelPendingProject(t *testing.T) {
	f := newFixture(defaultCompliance())
	p := f.newProject(t)

	tr, err := f.machine.Cancel(context.Background(), p, statemachine.LifecycleCommand{Actor: creator, Reason: "budget frozen"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, tr.Project.Status)
	entry, ok := tr.Project.LastHistory(types.ActionProjectCancelled)
	require.True(t, ok)
	assert.Equal(t, "budget frozen", entry.Metadata["reason"])

	_, err = f.machine.Approve(context.Background(), tr.Project, statemachine.ApproveCommand{Actor: legalHead, ComplianceProgramID: "cp-ok"})
	assert.ErrorIs(t, err, statemachine.ErrNoPendingStep)

	_, err = f.machine.StartImplementation(context.Background(), p, statemachine.LifecycleCommand{Actor: creator})
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = f.machine.Cancel(context.Background(), nil, statemachine.LifecycleCommand{Actor: creator})
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}
