// Package progress derives read-only reporting views (completion counters
// and human readable level labels) from a project's approval chain.
package progress

import (
	"fmt"
	"math"
	"strings"

	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// LabelAllCompleted 没有待审批步骤时的标签
const LabelAllCompleted = "All levels completed"

// ownDepartmentBudget 超过该预算时标记创建人所在部门负责的待审批步骤
const ownDepartmentBudget = 25_000_000

// Progress 审批进度
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Of 统计审批链进度, 通过和跳过的步骤都计为已完成
func Of(steps []project.ApprovalStep) Progress {
	p := Progress{Total: len(steps)}
	for _, step := range steps {
		if step.Status.IsResolved() {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percentage = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}
	return p
}

// CurrentLevelLabel 返回当前审批级别的展示文本
func CurrentLevelLabel(p *project.Project) string {
	if p == nil {
		return ""
	}

	if idx := p.RejectedIndex(); idx >= 0 {
		return "Rejected at " + p.ApprovalChain[idx].Level.Label()
	}

	step := p.CurrentStep()
	if step == nil {
		return LabelAllCompleted
	}

	label := step.Level.Label()
	entry, ok := p.LastHistory(types.ActionProjectResubmitted)
	if !ok {
		return label
	}

	label += " (Resubmitted)"
	if preserved := preservedLabels(entry.Metadata["preservedApprovals"]); len(preserved) > 0 {
		label += " - preserved approvals: " + strings.Join(preserved, ", ")
	}
	return label
}

// preservedLabels 兼容内存中的 []string 和 JSON 反序列化后的 []interface{}
func preservedLabels(v interface{}) []string {
	var raw []string
	switch levels := v.(type) {
	case []string:
		raw = levels
	case []types.Level:
		for _, l := range levels {
			raw = append(raw, string(l))
		}
	case []interface{}:
		for _, l := range levels {
			if s, ok := l.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		labels = append(labels, types.Level(l).Label())
	}
	return labels
}

// IsOwnDepartmentStep 超过 25M 的项目,当前步骤是否由创建人所在的财务或总裁办负责
// 仅用于展示,不影响审批链
func IsOwnDepartmentStep(p *project.Project, creator project.User) bool {
	if p == nil || p.Budget <= ownDepartmentBudget {
		return false
	}
	step := p.CurrentStep()
	if step == nil {
		return false
	}
	switch creator.DepartmentName {
	case types.DepartmentFinance:
		return step.Level == types.LevelFinance || step.Level == types.LevelBudgetAllocation
	case types.DepartmentExecutive:
		return step.Level == types.LevelExecutive
	}
	return false
}

// StepView 审批步骤展示
type StepView struct {
	project.ApprovalStep
	Label   string `json:"label"`
	Current bool   `json:"current"`
}

// Summary 项目审批进度汇总
type Summary struct {
	ProjectID         string              `json:"projectId"`
	Status            types.ProjectStatus `json:"status"`
	Progress          Progress            `json:"progress"`
	CurrentLevel      types.Level         `json:"currentLevel,omitempty"`
	CurrentLevelLabel string              `json:"currentLevelLabel"`
	Band              string              `json:"band,omitempty"`
	BandColor         string              `json:"bandColor,omitempty"`
	Steps             []StepView          `json:"steps"`
}

// Summarize 汇总项目审批进度, table 为空时不返回预算区间
func Summarize(p *project.Project, table *policy.Table) Summary {
	s := Summary{
		ProjectID:         p.ID,
		Status:            p.Status,
		Progress:          Of(p.ApprovalChain),
		CurrentLevelLabel: CurrentLevelLabel(p),
		Steps:             make([]StepView, 0, len(p.ApprovalChain)),
	}

	current := p.CurrentIndex()
	if current >= 0 {
		s.CurrentLevel = p.ApprovalChain[current].Level
	}
	for i, step := range p.ApprovalChain {
		s.Steps = append(s.Steps, StepView{ApprovalStep: step, Label: step.Level.Label(), Current: i == current})
	}

	if table != nil {
		if band, err := table.Band(p.Budget); err == nil {
			s.Band = band.Name
			s.BandColor = band.Color
		}
	}

	return s
}

// String 以 "2/4 (50%)" 形式输出进度
func (p Progress) String() string {
	return fmt.Sprintf("%d/%d (%d%%)", p.Completed, p.Total, p.Percentage)
}
