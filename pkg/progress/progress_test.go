package progress_test

import (
	"encoding/json"
	"testing"

	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/progress"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOf_EmptyChain 空链条进度为 0
func TestOf_EmptyChain(t *testing.T) {
	assert.Equal(t, progress.Progress{Completed: 0, Total: 0, Percentage: 0}, progress.Of(nil))
	assert.Equal(t, progress.Progress{}, progress.Of([]project.ApprovalStep{}))
}

// TestOf_CountsSkippedAsCompleted 4 个步骤中 2 个通过 1 个跳过为 75%
func TestOf_CountsSkippedAsCompleted(t *testing.T) {
	steps := []project.ApprovalStep{
		{Level: types.LevelLegalCompliance, Status: types.StepApproved},
		{Level: types.LevelBudgetAllocation, Status: types.StepSkipped},
		{Level: types.LevelFinance, Status: types.StepApproved},
		{Level: types.LevelExecutive, Status: types.StepPending},
	}

	p := progress.Of(steps)
	assert.Equal(t, 3, p.Completed)
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 75, p.Percentage)
	assert.Equal(t, "3/4 (75%)", p.String())
}

// TestOf_Rounds 百分比四舍五入
func TestOf_Rounds(t *testing.T) {
	steps := []project.ApprovalStep{
		{Status: types.StepApproved},
		{Status: types.StepApproved},
		{Status: types.StepPending},
	}
	assert.Equal(t, 67, progress.Of(steps).Percentage)
}

// TestCurrentLevelLabel 测试当前级别标签
func TestCurrentLevelLabel(t *testing.T) {
	p := &project.Project{ApprovalChain: []project.ApprovalStep{
		{Level: types.LevelLegalCompliance, Status: types.StepApproved},
		{Level: types.LevelFinance, Status: types.StepPending},
	}}
	assert.Equal(t, "Finance", progress.CurrentLevelLabel(p))

	p.ApprovalChain[1].Status = types.StepRejected
	assert.Equal(t, "Rejected at Finance", progress.CurrentLevelLabel(p))

	p.ApprovalChain[1].Status = types.StepApproved
	assert.Equal(t, progress.LabelAllCompleted, progress.CurrentLevelLabel(&project.Project{}))
	assert.Equal(t, progress.LabelAllCompleted, progress.CurrentLevelLabel(p))
}

// TestCurrentLevelLabel_Resubmitted 重新提交后的标签包含保留的审批
func TestCurrentLevelLabel_Resubmitted(t *testing.T) {
	p := &project.Project{
		ApprovalChain: []project.ApprovalStep{
			{Level: types.LevelLegalCompliance, Status: types.StepApproved},
			{Level: types.LevelFinance, Status: types.StepPending},
			{Level: types.LevelExecutive, Status: types.StepPending},
		},
		WorkflowHistory: []project.HistoryEntry{
			{Action: types.ActionProjectRejected, Metadata: map[string]interface{}{"rejectionPoint": "finance"}},
			{Action: types.ActionProjectResubmitted, Metadata: map[string]interface{}{"preservedApprovals": []string{"legal_compliance"}}},
		},
	}
	expected := "Finance (Resubmitted) - preserved approvals: Legal & Compliance"
	assert.Equal(t, expected, progress.CurrentLevelLabel(p))

	// 经过 JSON 序列化后元数据变为 []interface{}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded project.Project
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, expected, progress.CurrentLevelLabel(&decoded))

	p.WorkflowHistory[1].Metadata["preservedApprovals"] = []string{}
	assert.Equal(t, "Finance (Resubmitted)", progress.CurrentLevelLabel(p))
}

// TestIsOwnDepartmentStep 超过 25M 时仅标记创建人所在部门的步骤
func TestIsOwnDepartmentStep(t *testing.T) {
	p := &project.Project{
		Budget: 30_000_000,
		ApprovalChain: []project.ApprovalStep{
			{Level: types.LevelFinance, Status: types.StepPending},
			{Level: types.LevelExecutive, Status: types.StepPending},
		},
	}
	financeCreator := project.User{ID: "c", DepartmentName: types.DepartmentFinance}
	execCreator := project.User{ID: "c", DepartmentName: types.DepartmentExecutive}

	assert.True(t, progress.IsOwnDepartmentStep(p, financeCreator))
	assert.False(t, progress.IsOwnDepartmentStep(p, execCreator))

	p.Budget = 25_000_000
	assert.False(t, progress.IsOwnDepartmentStep(p, financeCreator))
}

// TestSummarize 测试进度汇总
func TestSummarize(t *testing.T) {
	p := &project.Project{
		ID:     "p-1",
		Budget: 10_000_000,
		Status: types.PendingStatus(types.LevelFinance),
		ApprovalChain: []project.ApprovalStep{
			{Level: types.LevelLegalCompliance, Status: types.StepApproved},
			{Level: types.LevelFinance, Status: types.StepPending},
			{Level: types.LevelExecutive, Status: types.StepPending},
		},
	}

	s := progress.Summarize(p, policy.Default())
	assert.Equal(t, "p-1", s.ProjectID)
	assert.Equal(t, types.LevelFinance, s.CurrentLevel)
	assert.Equal(t, "Finance", s.CurrentLevelLabel)
	assert.Equal(t, 33, s.Progress.Percentage)
	assert.Equal(t, "high", s.Band)
	assert.Equal(t, "orange", s.BandColor)
	require.Len(t, s.Steps, 3)
	assert.False(t, s.Steps[0].Current)
	assert.True(t, s.Steps[1].Current)
	assert.Equal(t, "Legal & Compliance", s.Steps[0].Label)

	s = progress.Summarize(p, nil)
	assert.Empty(t, s.Band)
}
