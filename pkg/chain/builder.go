// Package chain materializes the ordered approval chain of a project from the
// routing policy table.
package chain

import (
	"errors"
	"sync"

	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// Options 链条构建参数
type Options struct {
	// TopRoleLevel 平台最高权限级别,达到该级别的提交人豁免所有审批
	TopRoleLevel int
	// ImmediateExecutionScopes 审批完成后直接进入实施阶段的项目范围
	ImmediateExecutionScopes []types.Scope
}

// Result 链条构建结果
type Result struct {
	Steps  []project.ApprovalStep `json:"steps"`
	Status types.ProjectStatus    `json:"status"`
	Band   policy.Band            `json:"band"`
	Exempt bool                   `json:"exempt"`
}

// Builder 审批链构建器
type Builder struct {
	mu    sync.RWMutex
	table *policy.Table
	opts  Options
}

// NewBuilder 创建审批链构建器
func NewBuilder(table *policy.Table, opts Options) *Builder {
	if table == nil {
		table = policy.Default()
	}
	return &Builder{table: table, opts: opts}
}

// SetTable 替换策略表(配置热更新)
func (b *Builder) SetTable(table *policy.Table) {
	if table == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table = table
}

// SetOptions 替换构建参数
func (b *Builder) SetOptions(opts Options) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = opts
}

// Table 返回当前策略表
func (b *Builder) Table() *policy.Table {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.table
}

// Options 返回当前构建参数
func (b *Builder) Options() Options {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opts
}

// Build 构建项目审批链并给出初始状态
func (b *Builder) Build(p *project.Project, creator project.User) (*Result, error) {
	if p == nil {
		return nil, errors.New("project is nil")
	}

	b.mu.RLock()
	table, opts := b.table, b.opts
	b.mu.RUnlock()

	band, err := table.Band(p.Budget)
	if err != nil {
		return nil, err
	}

	if opts.TopRoleLevel > 0 && creator.RoleLevel >= opts.TopRoleLevel {
		return &Result{
			Steps:  []project.ApprovalStep{},
			Status: types.StatusApproved,
			Band:   band,
			Exempt: true,
		}, nil
	}

	reqs, err := table.Resolve(p.Scope, p.Budget, p.RequiresBudgetAllocation)
	if err != nil {
		return nil, err
	}

	steps := make([]project.ApprovalStep, 0, len(reqs))
	for _, req := range reqs {
		step := project.ApprovalStep{
			Level:  req.Level,
			Status: types.StepPending,
		}
		if req.Skip {
			step.Status = types.StepSkipped
			step.Comments = req.Reason
		}
		if req.Level == types.LevelHOD {
			step.DepartmentRef = p.Department.ID
		}
		steps = append(steps, step)
	}

	return &Result{
		Steps:  steps,
		Status: InitialStatus(steps, p.Scope, opts),
		Band:   band,
	}, nil
}

// InitialStatus 根据链条给出项目状态
func InitialStatus(steps []project.ApprovalStep, scope types.Scope, opts Options) types.ProjectStatus {
	for _, step := range steps {
		if step.Status == types.StepPending {
			return types.PendingStatus(step.Level)
		}
	}
	return TerminalStatus(scope, opts)
}

// TerminalStatus 返回审批全部完成后的项目状态
func TerminalStatus(scope types.Scope, opts Options) types.ProjectStatus {
	for _, s := range opts.ImmediateExecutionScopes {
		if s == scope {
			return types.StatusImplementation
		}
	}
	return types.StatusApproved
}
