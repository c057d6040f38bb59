package policy

import "github.com/mautops/project-approval/pkg/types"

// Band 预算区间,UpperBound 为 nil 表示无上限(区间上界包含在内)
type Band struct {
	Name       string   `yaml:"name" json:"name"`
	UpperBound *float64 `yaml:"upper_bound,omitempty" json:"upperBound,omitempty"`
	Color      string   `yaml:"color,omitempty" json:"color,omitempty"`
}

// Contains 预算是否落在区间内(下界由前一个区间决定)
func (b Band) Contains(budget float64) bool {
	return b.UpperBound == nil || budget <= *b.UpperBound
}

// Rule 路由规则: 区间 × 范围 × 预算分配标记 → 审批级别序列
type Rule struct {
	ID                       string        `yaml:"id" json:"id"`
	Bands                    []string      `yaml:"bands,omitempty" json:"bands,omitempty"` // 为空表示匹配所有区间
	Scopes                   []types.Scope `yaml:"scopes" json:"scopes"`
	RequiresBudgetAllocation *bool         `yaml:"requires_budget_allocation,omitempty" json:"requiresBudgetAllocation,omitempty"` // 为空表示不限
	Levels                   []LevelSpec   `yaml:"levels" json:"levels"`
}

// LevelSpec 规则中的单个审批级别
type LevelSpec struct {
	Level  types.Level `yaml:"level" json:"level"`
	Skip   bool        `yaml:"skip,omitempty" json:"skip,omitempty"`
	Reason string      `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Requirement 解析结果中的一个审批要求
type Requirement struct {
	Level  types.Level `json:"level"`
	Skip   bool        `json:"skip,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Levels 返回要求中的级别序列
func Levels(reqs []Requirement) []types.Level {
	levels := make([]types.Level, 0, len(reqs))
	for _, r := range reqs {
		levels = append(levels, r.Level)
	}
	return levels
}

func (r Rule) matchesBand(band string) bool {
	if len(r.Bands) == 0 {
		return true
	}
	for _, b := range r.Bands {
		if b == band {
			return true
		}
	}
	return false
}

func (r Rule) matchesScope(scope types.Scope) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (r Rule) matchesAllocation(requires bool) bool {
	return r.RequiresBudgetAllocation == nil || *r.RequiresBudgetAllocation == requires
}
