package project

import (
	"time"

	"github.com/mautops/project-approval/pkg/types"
)

// Department 部门引用
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User 操作人身份信息,由身份服务提供
type User struct {
	ID             string `json:"userId"`
	RoleLevel      int    `json:"roleLevel"`
	DepartmentID   string `json:"departmentId"`
	DepartmentName string `json:"departmentName"`
}

// RequiredDocument 项目所需文档
type RequiredDocument struct {
	DocumentType string `json:"documentType"`
	IsSubmitted  bool   `json:"isSubmitted"`
	DocumentID   string `json:"documentId,omitempty"`
}

// ApprovalStep 审批步骤
type ApprovalStep struct {
	Level         types.Level      `json:"level"`
	Status        types.StepStatus `json:"status"`
	ApproverID    string           `json:"approverId,omitempty"`
	ApprovedAt    *time.Time       `json:"approvedAt,omitempty"`
	Comments      string           `json:"comments,omitempty"`
	DepartmentRef string           `json:"departmentRef,omitempty"`
}

// HistoryEntry 工作流历史记录(只追加)
type HistoryEntry struct {
	Action    string                 `json:"action"`
	ActorID   string                 `json:"actorId"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Project 项目聚合根
type Project struct {
	ID                       string              `json:"id"`
	Name                     string              `json:"name"`
	Description              string              `json:"description,omitempty"`
	Scope                    types.Scope         `json:"scope"`
	Budget                   float64             `json:"budget"`
	RequiresBudgetAllocation bool                `json:"requiresBudgetAllocation"`
	Department               Department          `json:"department"`
	CreatorID                string              `json:"creatorId"`
	Status                   types.ProjectStatus `json:"status"`
	RequiredDocuments        []RequiredDocument  `json:"requiredDocuments"`
	ApprovalChain            []ApprovalStep      `json:"approvalChain"`
	ComplianceProgramID      string              `json:"complianceProgramId,omitempty"`
	RejectionReason          string              `json:"rejectionReason,omitempty"`
	RejectionComments        string              `json:"rejectionComments,omitempty"`
	WorkflowHistory          []HistoryEntry      `json:"workflowHistory"`
	Version                  int                 `json:"version"`
	CreatedAt                time.Time           `json:"createdAt"`
	UpdatedAt                time.Time           `json:"updatedAt"`
}

// CurrentIndex 返回当前步骤的下标
// 当前步骤是第一个 pending 状态的步骤; 若它之前存在 rejected 步骤则链条已暂停,返回 -1
func (p *Project) CurrentIndex() int {
	for i, step := range p.ApprovalChain {
		switch step.Status {
		case types.StepRejected:
			return -1
		case types.StepPending:
			return i
		}
	}
	return -1
}

// CurrentStep 返回当前待审批步骤,没有时返回 nil
func (p *Project) CurrentStep() *ApprovalStep {
	idx := p.CurrentIndex()
	if idx < 0 {
		return nil
	}
	return &p.ApprovalChain[idx]
}

// RejectedIndex 返回被驳回步骤的下标,没有时返回 -1
func (p *Project) RejectedIndex() int {
	for i, step := range p.ApprovalChain {
		if step.Status == types.StepRejected {
			return i
		}
	}
	return -1
}

// IsHalted 链条是否因驳回而暂停
func (p *Project) IsHalted() bool {
	return p.RejectedIndex() >= 0
}

// IsChainComplete 所有步骤是否都已通过或跳过
func (p *Project) IsChainComplete() bool {
	for _, step := range p.ApprovalChain {
		if !step.Status.IsResolved() {
			return false
		}
	}
	return true
}

// ApprovedLevels 返回所有已通过步骤的级别
func (p *Project) ApprovedLevels() []types.Level {
	levels := make([]types.Level, 0, len(p.ApprovalChain))
	for _, step := range p.ApprovalChain {
		if step.Status == types.StepApproved {
			levels = append(levels, step.Level)
		}
	}
	return levels
}

// HasLevel 链条中是否包含某个级别
func (p *Project) HasLevel(level types.Level) bool {
	for _, step := range p.ApprovalChain {
		if step.Level == level {
			return true
		}
	}
	return false
}

// MissingDocuments 返回尚未提交的文档类型
func (p *Project) MissingDocuments() []string {
	missing := make([]string, 0)
	for _, doc := range p.RequiredDocuments {
		if !doc.IsSubmitted {
			missing = append(missing, doc.DocumentType)
		}
	}
	return missing
}

// AppendHistory 追加工作流历史
func (p *Project) AppendHistory(action, actorID string, at time.Time, metadata map[string]interface{}) {
	p.WorkflowHistory = append(p.WorkflowHistory, HistoryEntry{
		Action:    action,
		ActorID:   actorID,
		Timestamp: at,
		Metadata:  metadata,
	})
}

// LastHistory 返回最近一条指定动作的历史记录
func (p *Project) LastHistory(action string) (*HistoryEntry, bool) {
	for i := len(p.WorkflowHistory) - 1; i >= 0; i-- {
		if p.WorkflowHistory[i].Action == action {
			return &p.WorkflowHistory[i], true
		}
	}
	return nil, false
}

// Clone 深拷贝项目,状态机在副本上修改
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	clone := *p

	if p.RequiredDocuments != nil {
		clone.RequiredDocuments = make([]RequiredDocument, len(p.RequiredDocuments))
		copy(clone.RequiredDocuments, p.RequiredDocuments)
	}

	if p.ApprovalChain != nil {
		clone.ApprovalChain = make([]ApprovalStep, len(p.ApprovalChain))
		for i, step := range p.ApprovalChain {
			clone.ApprovalChain[i] = step
			if step.ApprovedAt != nil {
				at := *step.ApprovedAt
				clone.ApprovalChain[i].ApprovedAt = &at
			}
		}
	}

	if p.WorkflowHistory != nil {
		clone.WorkflowHistory = make([]HistoryEntry, len(p.WorkflowHistory))
		for i, entry := range p.WorkflowHistory {
			clone.WorkflowHistory[i] = entry
			if entry.Metadata != nil {
				md := make(map[string]interface{}, len(entry.Metadata))
				for k, v := range entry.Metadata {
					md[k] = v
				}
				clone.WorkflowHistory[i].Metadata = md
			}
		}
	}

	return &clone
}
