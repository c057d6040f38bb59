package authz_test

import (
	"testing"

	"github.com/mautops/project-approval/pkg/authz"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
)

func newProject() *project.Project {
	return &project.Project{ID: "p-1", CreatorID: "u-creator", Department: project.Department{ID: "d-ops", Name: "Operations"}}
}

// TestCanAct_DepartmentRules 测试各级别的部门授权规则
func TestCanAct_DepartmentRules(t *testing.T) {
	r := authz.NewResolver(authz.Config{HODThreshold: 3, TopRoleLevel: 5})
	p := newProject()

	tests := []struct {
		name     string
		level    types.Level
		user     project.User
		expected bool
	}{
		{"finance head on finance", types.LevelFinance, project.User{ID: "a", RoleLevel: 3, DepartmentName: types.DepartmentFinance}, true},
		{"finance head on budget allocation", types.LevelBudgetAllocation, project.User{ID: "a", RoleLevel: 4, DepartmentName: types.DepartmentFinance}, true},
		{"finance staff below threshold", types.LevelFinance, project.User{ID: "a", RoleLevel: 2, DepartmentName: types.DepartmentFinance}, false},
		{"legal head on finance", types.LevelFinance, project.User{ID: "a", RoleLevel: 3, DepartmentName: types.DepartmentLegalCompliance}, false},
		{"legal head on legal", types.LevelLegalCompliance, project.User{ID: "a", RoleLevel: 3, DepartmentName: types.DepartmentLegalCompliance}, true},
		{"executive on executive", types.LevelExecutive, project.User{ID: "a", RoleLevel: 4, DepartmentName: types.DepartmentExecutive}, true},
		{"pm head on project management", types.LevelProjectManagement, project.User{ID: "a", RoleLevel: 3, DepartmentName: types.DepartmentProjectManagement}, true},
		{"pm head on legacy department", types.LevelDepartment, project.User{ID: "a", RoleLevel: 3, DepartmentName: types.DepartmentProjectManagement}, true},
		{"top tier on any level", types.LevelLegalCompliance, project.User{ID: "a", RoleLevel: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &project.ApprovalStep{Level: tt.level, Status: types.StepPending}
			assert.Equal(t, tt.expected, r.CanAct(tt.user, step, p))
		})
	}
}

// TestCanAct_HODStepRequiresSameDepartment HOD 步骤要求同部门
func TestCanAct_HODStepRequiresSameDepartment(t *testing.T) {
	r := authz.NewResolver(authz.Config{})
	p := newProject()
	step := &project.ApprovalStep{Level: types.LevelHOD, Status: types.StepPending, DepartmentRef: "d-ops"}

	assert.True(t, r.CanAct(project.User{ID: "h", RoleLevel: 3, DepartmentID: "d-ops"}, step, p))
	assert.False(t, r.CanAct(project.User{ID: "h", RoleLevel: 3, DepartmentID: "d-sales"}, step, p))
}

// TestCanAct_HODStepWithoutDepartment 未绑定部门的 HOD 步骤拒绝所有非最高权限用户
func TestCanAct_HODStepWithoutDepartment(t *testing.T) {
	r := authz.NewResolver(authz.Config{HODThreshold: 3, TopRoleLevel: 5})
	p := newProject()
	step := &project.ApprovalStep{Level: types.LevelHOD, Status: types.StepPending}

	err := r.Explain(project.User{ID: "h", RoleLevel: 3}, step, p)
	assert.EqualError(t, err, "hod step has no department")
	assert.False(t, r.CanAct(project.User{ID: "h", RoleLevel: 4, DepartmentID: ""}, step, p))
	assert.True(t, r.CanAct(project.User{ID: "top", RoleLevel: 5}, step, p))
}

// TestCandidateLevels 测试列表预筛选使用的候选级别
func TestCandidateLevels(t *testing.T) {
	r := authz.NewResolver(authz.Config{HODThreshold: 3, TopRoleLevel: 5})

	levels, all := r.CandidateLevels(project.User{ID: "top", RoleLevel: 5})
	assert.True(t, all)
	assert.Empty(t, levels)

	levels, all = r.CandidateLevels(project.User{ID: "staff", RoleLevel: 2, DepartmentID: "d-fin", DepartmentName: types.DepartmentFinance})
	assert.False(t, all)
	assert.Empty(t, levels)

	levels, all = r.CandidateLevels(project.User{ID: "f", RoleLevel: 3, DepartmentID: "d-fin", DepartmentName: types.DepartmentFinance})
	assert.False(t, all)
	assert.Equal(t, []types.Level{types.LevelHOD, types.LevelFinance, types.LevelBudgetAllocation}, levels)

	levels, _ = r.CandidateLevels(project.User{ID: "l", RoleLevel: 3, DepartmentName: types.DepartmentLegalCompliance})
	assert.Equal(t, []types.Level{types.LevelLegalCompliance}, levels, "hod needs a department id")
}

// TestCanAct_NoSelfApproval 创建人不能审批自己的项目,即使是最高权限
func TestCanAct_NoSelfApproval(t *testing.T) {
	r := authz.NewResolver(authz.Config{})
	p := newProject()

	for _, level := range []types.Level{types.LevelFinance, types.LevelExecutive, types.LevelLegalCompliance} {
		step := &project.ApprovalStep{Level: level, Status: types.StepPending}
		admin := project.User{ID: "u-creator", RoleLevel: 9, DepartmentName: types.DepartmentExecutive}
		err := r.Explain(admin, step, p)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot approve")
	}
}

// TestCanAct_UnknownLevel 未知级别一律拒绝
func TestCanAct_UnknownLevel(t *testing.T) {
	r := authz.NewResolver(authz.Config{})
	step := &project.ApprovalStep{Level: types.Level("board"), Status: types.StepPending}

	assert.False(t, r.CanAct(project.User{ID: "x", RoleLevel: 4, DepartmentName: types.DepartmentExecutive}, step, newProject()))
	assert.False(t, r.CanAct(project.User{ID: "x", RoleLevel: 4}, nil, newProject()))
}

// TestSetConfig_Thresholds 测试阈值热更新
func TestSetConfig_Thresholds(t *testing.T) {
	r := authz.NewResolver(authz.Config{})
	assert.Equal(t, authz.DefaultHODThreshold, r.Config().HODThreshold)
	assert.Equal(t, authz.DefaultTopRoleLevel, r.Config().TopRoleLevel)

	user := project.User{ID: "x", RoleLevel: 2, DepartmentName: types.DepartmentFinance}
	step := &project.ApprovalStep{Level: types.LevelFinance, Status: types.StepPending}
	assert.False(t, r.CanAct(user, step, newProject()))

	r.SetConfig(authz.Config{HODThreshold: 2, TopRoleLevel: 4})
	assert.True(t, r.CanAct(user, step, newProject()))
	assert.True(t, r.IsTopTier(project.User{RoleLevel: 4}))
}
