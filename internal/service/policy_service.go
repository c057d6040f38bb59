package service

import (
	"fmt"

	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/progress"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// PolicyService 路由策略查询
type PolicyService interface {
	Table() *policy.Table
	Resolve(scope types.Scope, budget float64, requiresBudgetAllocation bool) (*PolicyResolution, error)
}

// PolicyResolution 给定项目属性时的审批链预览
type PolicyResolution struct {
	Scope                    types.Scope            `json:"scope"`
	Budget                   float64                `json:"budget"`
	RequiresBudgetAllocation bool                   `json:"requiresBudgetAllocation"`
	Band                     policy.Band            `json:"band"`
	Status                   types.ProjectStatus    `json:"status"`
	Steps                    []project.ApprovalStep `json:"steps"`
	Labels                   []string               `json:"labels"`
	Progress                 progress.Progress      `json:"progress"`
}

type policyService struct {
	builder *chain.Builder
}

// NewPolicyService 创建策略查询服务
func NewPolicyService(builder *chain.Builder) PolicyService {
	return &policyService{builder: builder}
}

// Table 返回当前生效的策略表
func (s *policyService) Table() *policy.Table {
	return s.builder.Table()
}

// Resolve 按策略表预览审批链,不考虑提交人豁免
func (s *policyService) Resolve(scope types.Scope, budget float64, requiresBudgetAllocation bool) (*PolicyResolution, error) {
	if !scope.IsValid() {
		return nil, fmt.Errorf("%w: %q", policy.ErrInvalidScope, scope)
	}

	p := &project.Project{
		Scope:                    scope,
		Budget:                   budget,
		RequiresBudgetAllocation: requiresBudgetAllocation,
	}
	result, err := s.builder.Build(p, project.User{})
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		labels = append(labels, step.Level.Label())
	}

	return &PolicyResolution{
		Scope:                    scope,
		Budget:                   budget,
		RequiresBudgetAllocation: requiresBudgetAllocation,
		Band:                     result.Band,
		Status:                   result.Status,
		Steps:                    result.Steps,
		Labels:                   labels,
		Progress:                 progress.Of(result.Steps),
	}, nil
}
