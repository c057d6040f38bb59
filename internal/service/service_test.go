package service_test

import (
	"context"
	"testing"

	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/database"
	"github.com/mautops/project-approval/internal/integration"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/internal/utils"
	"github.com/mautops/project-approval/pkg/authz"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var users = []config.UserConfig{
	{ID: "u-creator", RoleLevel: 2, DepartmentID: "d-ops", DepartmentName: "Operations"},
	{ID: "u-legal", RoleLevel: 3, DepartmentID: "d-legal", DepartmentName: types.DepartmentLegalCompliance},
	{ID: "u-finance", RoleLevel: 3, DepartmentID: "d-fin", DepartmentName: types.DepartmentFinance},
	{ID: "u-exec", RoleLevel: 4, DepartmentID: "d-exec", DepartmentName: types.DepartmentExecutive},
}

type fixture struct {
	db         *gorm.DB
	projects   service.ProjectService
	queries    service.QueryService
	statistics service.StatisticsService
	audit      service.AuditLogService
}

func newFixture(t *testing.T) *fixture {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	builder := chain.NewBuilder(policy.Default(), chain.Options{TopRoleLevel: 5})
	resolver := authz.NewResolver(authz.Config{})
	compliance := client.NewStaticComplianceSource([]config.ComplianceProgramConfig{
		{ID: "cp-ok", Name: "Vendor onboarding", Items: []config.ComplianceItemConfig{{ID: "kyc", Status: "compliant"}}},
	})
	machine := statemachine.New(builder, resolver, compliance)
	manager := integration.NewProjectManager(db, builder, machine, nil, nil)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	return &fixture{
		db:         db,
		projects:   service.NewProjectService(manager, client.NewStaticIdentitySource(users), audit, nil),
		queries:    service.NewQueryService(db, builder, resolver),
		statistics: service.NewStatisticsService(db),
		audit:      audit,
	}
}

func as(userID string) context.Context {
	return service.WithRequestInfo(context.Background(), service.RequestInfo{
		UserID:    userID,
		RequestID: "req-" + userID,
		IP:        "10.0.0.1",
		UserAgent: "go-test",
	})
}

func externalRequest() *service.CreateProjectRequest {
	return &service.CreateProjectRequest{
		Name:                     "Vendor platform",
		Scope:                    types.ScopeExternal,
		Budget:                   10_000_000,
		RequiresBudgetAllocation: true,
		RequiredDocuments:        []string{"project_proposal"},
	}
}

// TestProjectService_Create 测试创建项目并记录审计日志
func TestProjectService_Create(t *testing.T) {
	f := newFixture(t)

	resp, err := f.projects.Create(as("u-creator"), externalRequest())
	require.NoError(t, err)
	assert.Equal(t, "high", resp.Band)
	assert.False(t, resp.Exempt)
	assert.Equal(t, "d-ops", resp.Project.Department.ID, "department defaults to the creator's")
	assert.Equal(t, types.PendingStatus(types.LevelLegalCompliance), resp.Project.Status)
	require.Len(t, resp.Project.RequiredDocuments, 1)
	assert.False(t, resp.Project.RequiredDocuments[0].IsSubmitted)

	projectID := resp.Project.ID
	logs, total, err := f.audit.List(&repository.AuditLogFilter{ProjectID: &projectID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "create", logs[0].Action)
	assert.Equal(t, "u-creator", logs[0].ActorID)
	assert.Equal(t, "succeeded", logs[0].Outcome)
	assert.Equal(t, string(types.PendingStatus(types.LevelLegalCompliance)), logs[0].ToStatus)
	assert.Equal(t, "req-u-creator", logs[0].RequestID)
	assert.Equal(t, "10.0.0.1", logs[0].IP)
	assert.Contains(t, string(logs[0].Details), `"band":"high"`)
}

// TestProjectService_Actor 测试操作人解析
func TestProjectService_Actor(t *testing.T) {
	f := newFixture(t)

	_, err := f.projects.Create(context.Background(), externalRequest())
	assert.ErrorIs(t, err, service.ErrActorRequired)

	_, err = f.projects.Create(as("u-ghost"), externalRequest())
	assert.ErrorIs(t, err, service.ErrUnknownActor)

	user, err := f.projects.ResolveActor(as("u-legal"))
	require.NoError(t, err)
	assert.Equal(t, 3, user.RoleLevel)
}

// TestProjectService_CreateValidation 测试创建参数校验
func TestProjectService_CreateValidation(t *testing.T) {
	f := newFixture(t)

	req := externalRequest()
	req.Name = "  "
	_, err := f.projects.Create(as("u-creator"), req)
	assert.ErrorIs(t, err, utils.ErrEmptyName)

	req = externalRequest()
	req.Budget = -5
	_, err = f.projects.Create(as("u-creator"), req)
	assert.ErrorIs(t, err, utils.ErrNegativeBudget)

	req = externalRequest()
	req.Scope = "galactic"
	_, err = f.projects.Create(as("u-creator"), req)
	assert.ErrorIs(t, err, policy.ErrInvalidScope)
}

// TestProjectService_WorkflowAndQueries 测试审批流程与查询
func TestProjectService_WorkflowAndQueries(t *testing.T) {
	f := newFixture(t)

	resp, err := f.projects.Create(as("u-creator"), externalRequest())
	require.NoError(t, err)
	id := resp.Project.ID

	legal := project.User{ID: "u-legal", RoleLevel: 3, DepartmentID: "d-legal", DepartmentName: types.DepartmentLegalCompliance}
	pending, total, err := f.queries.ListPending(legal, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, id, pending[0].ID)

	finance := project.User{ID: "u-finance", RoleLevel: 3, DepartmentName: types.DepartmentFinance}
	pending, total, err = f.queries.ListPending(finance, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, pending)

	_, err = f.projects.Approve(as("u-legal"), id, &service.ApproveRequest{})
	assert.ErrorIs(t, err, statemachine.ErrMissingComplianceProgram)

	_, err = f.projects.Approve(as("u-finance"), id, &service.ApproveRequest{ComplianceProgramID: "cp-ok"})
	assert.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	_, err = f.projects.Approve(as("u-legal"), id, &service.ApproveRequest{ComplianceProgramID: "cp-ok"})
	assert.ErrorIs(t, err, statemachine.ErrDocumentsIncomplete)

	_, err = f.projects.SubmitDocument(as("u-creator"), id, "project_proposal", &service.SubmitDocumentRequest{DocumentID: "doc-1"})
	require.NoError(t, err)

	tr, err := f.projects.Approve(as("u-legal"), id, &service.ApproveRequest{Level: types.LevelLegalCompliance, ComplianceProgramID: "cp-ok"})
	require.NoError(t, err)
	assert.Equal(t, types.PendingStatus(types.LevelFinance), tr.To)

	_, err = f.projects.Reject(as("u-finance"), id, &service.RejectRequest{RejectionReason: "vibes"})
	assert.ErrorIs(t, err, service.ErrInvalidRejectionReason)

	tr, err = f.projects.Reject(as("u-finance"), id, &service.RejectRequest{RejectionReason: types.ReasonBudgetIssues, Comments: "trim it"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRevisionRequired, tr.To)

	tr, err = f.projects.Resubmit(as("u-creator"), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusResubmitted, tr.To)

	pending, total, err = f.queries.ListPending(finance, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "resubmitted projects stay actionable")
	assert.Equal(t, id, pending[0].ID)

	_, err = f.projects.Approve(as("u-finance"), id, &service.ApproveRequest{})
	require.NoError(t, err)
	tr, err = f.projects.Approve(as("u-exec"), id, &service.ApproveRequest{Comments: "go"})
	require.NoError(t, err)
	assert.True(t, tr.Final)

	tr, err = f.projects.StartImplementation(as("u-creator"), id, &service.LifecycleRequest{Reason: "kickoff"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusImplementation, tr.To)

	summary, err := f.queries.GetProgress(id)
	require.NoError(t, err)
	assert.Equal(t, 100, summary.Progress.Percentage)
	assert.Equal(t, "high", summary.Band)

	records, err := f.queries.GetRecords(id)
	require.NoError(t, err)
	require.Len(t, records, 4)
	attempts := map[string]int{}
	for _, r := range records {
		if r.Result == "reject" {
			assert.Equal(t, string(types.ReasonBudgetIssues), r.ReasonCategory)
		}
		attempts[r.Level+"/"+r.Result] = r.Attempt
	}
	assert.Equal(t, 1, attempts["finance/reject"])
	assert.Equal(t, 2, attempts["finance/approve"])

	history, err := f.queries.GetHistory(id)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
	assert.Equal(t, types.ActionProjectCreated, history[0].Action)

	workflow, err := f.queries.GetWorkflowHistory(id)
	require.NoError(t, err)
	assert.Equal(t, types.ActionProjectCreated, workflow[0].Action)

	status := string(types.StatusImplementation)
	list, total, err := f.queries.ListProjects(&service.ListProjectsFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, id, list[0].ID)

	approvals, err := f.statistics.GetApprovalStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(4), approvals.TotalApprovals)
	assert.Equal(t, int64(3), approvals.ApprovedCount)
	assert.Equal(t, int64(1), approvals.RejectedCount)
	assert.InDelta(t, 75.0, approvals.ApprovalRate, 0.001)
	assert.Len(t, approvals.ByLevel, 3)
	assert.Equal(t, map[string]int64{string(types.ReasonBudgetIssues): 1}, approvals.RejectionsByReason)

	byStatus, err := f.statistics.GetProjectStatisticsByStatus()
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, status, byStatus[0].Status)

	byScope, err := f.statistics.GetProjectStatisticsByScope()
	require.NoError(t, err)
	require.Len(t, byScope, 1)
	assert.InDelta(t, 10_000_000, byScope[0].TotalBudget, 0.01)

	byTime, err := f.statistics.GetProjectStatisticsByTime()
	require.NoError(t, err)
	require.Len(t, byTime, 1)
	assert.Equal(t, int64(1), byTime[0].Count)

	// 被规则拒绝的尝试也会审计
	rejected := "rejected"
	logs, total, err := f.audit.List(&repository.AuditLogFilter{ProjectID: &id, Outcome: &rejected})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	kinds := map[string]bool{}
	for _, l := range logs {
		kinds[l.ErrorKind] = true
	}
	assert.True(t, kinds[string(statemachine.KindNotAuthorized)])
	assert.True(t, kinds[string(statemachine.KindDocumentsIncomplete)])

	succeeded := "succeeded"
	logs, total, err = f.audit.List(&repository.AuditLogFilter{ProjectID: &id, Outcome: &succeeded, Action: strPtr("reject")})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, string(types.LevelFinance), logs[0].Level)
	assert.Equal(t, string(types.StatusRevisionRequired), logs[0].ToStatus)
}

func strPtr(s string) *string { return &s }

// TestQueryService_ListPendingPrefilter 测试待办列表按候选级别预筛选
func TestQueryService_ListPendingPrefilter(t *testing.T) {
	f := newFixture(t)

	resp, err := f.projects.Create(as("u-creator"), externalRequest())
	require.NoError(t, err)

	staff := project.User{ID: "u-staff", RoleLevel: 2, DepartmentID: "d-legal", DepartmentName: types.DepartmentLegalCompliance}
	pending, total, err := f.queries.ListPending(staff, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, pending)

	top := project.User{ID: "u-top", RoleLevel: 5}
	pending, total, err = f.queries.ListPending(top, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pending, 1)
	assert.Equal(t, resp.Project.ID, pending[0].ID)

	creatorAsTop := project.User{ID: "u-creator", RoleLevel: 5}
	pending, total, err = f.queries.ListPending(creatorAsTop, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total, "creators never see their own projects")
	assert.Empty(t, pending)
}

// TestQueryService_NotFound 测试项目不存在
func TestQueryService_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.queries.GetProgress("missing")
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)

	_, err = f.projects.Approve(as("u-legal"), "missing", &service.ApproveRequest{})
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
}

// TestPolicyService_Resolve 测试策略预览
func TestPolicyService_Resolve(t *testing.T) {
	svc := service.NewPolicyService(chain.NewBuilder(policy.Default(), chain.Options{TopRoleLevel: 5}))

	res, err := svc.Resolve(types.ScopeExternal, 10_000_000, true)
	require.NoError(t, err)
	assert.Equal(t, "high", res.Band.Name)
	assert.Equal(t, types.PendingStatus(types.LevelLegalCompliance), res.Status)
	assert.Equal(t, []string{"Legal & Compliance", "Finance", "Executive"}, res.Labels)
	assert.Equal(t, 0, res.Progress.Completed)

	_, err = svc.Resolve("galactic", 1, false)
	assert.ErrorIs(t, err, policy.ErrInvalidScope)

	_, err = svc.Resolve(types.ScopePersonal, -1, false)
	assert.ErrorIs(t, err, policy.ErrNegativeBudget)

	assert.NotEmpty(t, svc.Table().Bands)
}
