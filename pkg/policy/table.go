package policy

import (
	"errors"
	"fmt"

	"github.com/mautops/project-approval/pkg/types"
)

var (
	// ErrNegativeBudget 预算为负数
	ErrNegativeBudget = errors.New("budget must not be negative")
	// ErrInvalidScope 非法的项目范围
	ErrInvalidScope = errors.New("invalid project scope")
	// ErrNoMatchingRule 没有匹配的路由规则
	ErrNoMatchingRule = errors.New("no routing rule matches project")
)

// Table 审批路由策略表
type Table struct {
	Version string `yaml:"version" json:"version"`
	Bands   []Band `yaml:"bands" json:"bands"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

func bound(v float64) *float64 {
	return &v
}

func flag(v bool) *bool {
	return &v
}

// Default 返回内置策略表
// 1M-5M 与 5M-25M 两个区间的路由完全一致,仅颜色不同
func Default() *Table {
	internal := []types.Scope{types.ScopePersonal, types.ScopeDepartmental}
	external := []types.Scope{types.ScopeExternal}

	return &Table{
		Version: "default",
		Bands: []Band{
			{Name: "standard", UpperBound: bound(1_000_000), Color: "green"},
			{Name: "elevated", UpperBound: bound(5_000_000), Color: "blue"},
			{Name: "high", UpperBound: bound(25_000_000), Color: "orange"},
			{Name: "strategic", Color: "red"},
		},
		Rules: []Rule{
			{
				ID:                       "internal-auto-approve",
				Scopes:                   internal,
				RequiresBudgetAllocation: flag(false),
				Levels:                   []LevelSpec{},
			},
			{
				ID:                       "internal-budget-allocation",
				Scopes:                   internal,
				RequiresBudgetAllocation: flag(true),
				Levels: []LevelSpec{
					{Level: types.LevelFinance},
					{Level: types.LevelExecutive},
				},
			},
			{
				ID:                       "external",
				Scopes:                   external,
				RequiresBudgetAllocation: flag(false),
				Levels: []LevelSpec{
					{Level: types.LevelLegalCompliance},
					{Level: types.LevelExecutive},
				},
			},
			{
				ID:                       "external-budget-allocation",
				Scopes:                   external,
				RequiresBudgetAllocation: flag(true),
				Levels: []LevelSpec{
					{Level: types.LevelLegalCompliance},
					{Level: types.LevelFinance},
					{Level: types.LevelExecutive},
				},
			},
		},
	}
}

// Band 返回预算所在的区间
func (t *Table) Band(budget float64) (Band, error) {
	if budget < 0 {
		return Band{}, ErrNegativeBudget
	}
	for _, b := range t.Bands {
		if b.Contains(budget) {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("no budget band contains %.2f", budget)
}

// Resolve 解析项目所需的审批级别序列
// 规则按顺序匹配,第一个命中的规则生效
func (t *Table) Resolve(scope types.Scope, budget float64, requiresBudgetAllocation bool) ([]Requirement, error) {
	if !scope.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	band, err := t.Band(budget)
	if err != nil {
		return nil, err
	}

	for _, rule := range t.Rules {
		if !rule.matchesBand(band.Name) || !rule.matchesScope(scope) || !rule.matchesAllocation(requiresBudgetAllocation) {
			continue
		}
		reqs := make([]Requirement, 0, len(rule.Levels))
		for _, spec := range rule.Levels {
			reqs = append(reqs, Requirement{Level: spec.Level, Skip: spec.Skip, Reason: spec.Reason})
		}
		return reqs, nil
	}

	return nil, fmt.Errorf("%w: scope=%s band=%s allocation=%t", ErrNoMatchingRule, scope, band.Name, requiresBudgetAllocation)
}

// Validate 校验策略表
func (t *Table) Validate() error {
	if len(t.Bands) == 0 {
		return errors.New("policy must define at least one budget band")
	}

	names := make(map[string]bool, len(t.Bands))
	var prev *float64
	for i, b := range t.Bands {
		if b.Name == "" {
			return fmt.Errorf("band %d has no name", i)
		}
		if names[b.Name] {
			return fmt.Errorf("duplicate band %q", b.Name)
		}
		names[b.Name] = true

		last := i == len(t.Bands)-1
		if b.UpperBound == nil && !last {
			return fmt.Errorf("band %q is unbounded but is not the last band", b.Name)
		}
		if b.UpperBound != nil && last {
			return fmt.Errorf("last band %q must be unbounded", b.Name)
		}
		if b.UpperBound != nil && prev != nil && *b.UpperBound <= *prev {
			return fmt.Errorf("band %q upper bound must be greater than the previous band", b.Name)
		}
		prev = b.UpperBound
	}

	for i, r := range t.Rules {
		if len(r.Scopes) == 0 {
			return fmt.Errorf("rule %d (%s) has no scopes", i, r.ID)
		}
		for _, s := range r.Scopes {
			if !s.IsValid() {
				return fmt.Errorf("rule %d (%s): %w: %q", i, r.ID, ErrInvalidScope, s)
			}
		}
		for _, b := range r.Bands {
			if !names[b] {
				return fmt.Errorf("rule %d (%s) references unknown band %q", i, r.ID, b)
			}
		}
		seen := make(map[types.Level]bool, len(r.Levels))
		for _, l := range r.Levels {
			if !l.Level.IsValid() {
				return fmt.Errorf("rule %d (%s) references unknown level %q", i, r.ID, l.Level)
			}
			if seen[l.Level] {
				return fmt.Errorf("rule %d (%s) lists level %q twice", i, r.ID, l.Level)
			}
			seen[l.Level] = true
		}
	}

	return nil
}
