package types

import (
	"fmt"
	"strings"
)

// Scope 项目范围
type Scope string

const (
	ScopePersonal     Scope = "personal"
	ScopeDepartmental Scope = "departmental"
	ScopeExternal     Scope = "external"
)

// AllScopes 返回所有项目范围
func AllScopes() []Scope {
	return []Scope{ScopePersonal, ScopeDepartmental, ScopeExternal}
}

// IsValid 判断项目范围是否合法
func (s Scope) IsValid() bool {
	switch s {
	case ScopePersonal, ScopeDepartmental, ScopeExternal:
		return true
	}
	return false
}

// Level 审批级别
type Level string

const (
	LevelHOD               Level = "hod"
	LevelDepartment        Level = "department" // 旧版本的项目管理级别
	LevelFinance           Level = "finance"
	LevelExecutive         Level = "executive"
	LevelLegalCompliance   Level = "legal_compliance"
	LevelProjectManagement Level = "project_management"
	LevelBudgetAllocation  Level = "budget_allocation"
)

var levelLabels = map[Level]string{
	LevelHOD:               "HOD",
	LevelDepartment:        "Department",
	LevelFinance:           "Finance",
	LevelExecutive:         "Executive",
	LevelLegalCompliance:   "Legal & Compliance",
	LevelProjectManagement: "Project Management",
	LevelBudgetAllocation:  "Budget Allocation",
}

// IsValid 判断审批级别是否合法
func (l Level) IsValid() bool {
	_, ok := levelLabels[l]
	return ok
}

// Label 返回审批级别的展示名称
func (l Level) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return string(l)
}

// StepStatus 审批步骤状态
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// IsResolved 步骤是否已完成(通过或跳过)
func (s StepStatus) IsResolved() bool {
	return s == StepApproved || s == StepSkipped
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	StatusPlanning         ProjectStatus = "planning"
	StatusResubmitted      ProjectStatus = "resubmitted"
	StatusApproved         ProjectStatus = "approved"
	StatusImplementation   ProjectStatus = "implementation"
	StatusCompleted        ProjectStatus = "completed"
	StatusRejected         ProjectStatus = "rejected"
	StatusRevisionRequired ProjectStatus = "revision_required"
	StatusCancelled        ProjectStatus = "cancelled"
)

const (
	pendingPrefix = "pending_"
	pendingSuffix = "_approval"
)

// PendingStatus 返回某个级别待审批的项目状态,如 pending_finance_approval
func PendingStatus(level Level) ProjectStatus {
	return ProjectStatus(fmt.Sprintf("%s%s%s", pendingPrefix, level, pendingSuffix))
}

// PendingLevel 从 pending_<level>_approval 状态中解析级别
func (s ProjectStatus) PendingLevel() (Level, bool) {
	str := string(s)
	if !strings.HasPrefix(str, pendingPrefix) || !strings.HasSuffix(str, pendingSuffix) {
		return "", false
	}
	level := Level(strings.TrimSuffix(strings.TrimPrefix(str, pendingPrefix), pendingSuffix))
	if !level.IsValid() {
		return "", false
	}
	return level, true
}

// IsPending 是否处于某个级别的待审批状态
func (s ProjectStatus) IsPending() bool {
	_, ok := s.PendingLevel()
	return ok
}

// IsTerminal 是否为终态(归档只读)
func (s ProjectStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsHalted 是否处于驳回待修改状态
func (s ProjectStatus) IsHalted() bool {
	return s == StatusRejected || s == StatusRevisionRequired
}

// IsValid 判断项目状态是否合法
func (s ProjectStatus) IsValid() bool {
	switch s {
	case StatusPlanning, StatusResubmitted, StatusApproved, StatusImplementation,
		StatusCompleted, StatusRejected, StatusRevisionRequired, StatusCancelled:
		return true
	}
	return s.IsPending()
}

// RejectionReason 驳回原因分类
type RejectionReason string

const (
	ReasonBudgetIssues            RejectionReason = "budget_issues"
	ReasonIncompleteDocumentation RejectionReason = "incomplete_documentation"
	ReasonComplianceConcerns      RejectionReason = "compliance_concerns"
	ReasonScopeMisalignment       RejectionReason = "scope_misalignment"
	ReasonResourceConstraints     RejectionReason = "resource_constraints"
	ReasonTimelineConcerns        RejectionReason = "timeline_concerns"
	ReasonOther                   RejectionReason = "other"
)

// IsValid 判断驳回原因是否合法
func (r RejectionReason) IsValid() bool {
	switch r {
	case ReasonBudgetIssues, ReasonIncompleteDocumentation, ReasonComplianceConcerns,
		ReasonScopeMisalignment, ReasonResourceConstraints, ReasonTimelineConcerns, ReasonOther:
		return true
	}
	return false
}

// 工作流历史动作
const (
	ActionProjectCreated        = "project_created"
	ActionProjectAutoApproved   = "project_auto_approved"
	ActionLevelApproved         = "level_approved"
	ActionProjectApproved       = "project_approved"
	ActionProjectRejected       = "project_rejected"
	ActionProjectResubmitted    = "project_resubmitted"
	ActionComplianceAttached    = "compliance_program_attached"
	ActionProjectCancelled      = "project_cancelled"
	ActionImplementationStarted = "implementation_started"
	ActionProjectCompleted      = "project_completed"
	ActionDocumentSubmitted     = "document_submitted"
)

// 部门名称,授权判断按名称精确匹配
const (
	DepartmentProjectManagement = "Project Management"
	DepartmentFinance           = "Finance & Accounting"
	DepartmentLegalCompliance   = "Legal & Compliance"
	DepartmentExecutive         = "Executive Office"
)
