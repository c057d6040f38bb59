package integration

import (
	"encoding/json"
	"fmt"

	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/pkg/project"
)

// ToModel 将项目转换为数据模型,Data 保存完整快照
func ToModel(p *project.Project) (*model.ProjectModel, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project: %w", err)
	}

	currentLevel := ""
	if step := p.CurrentStep(); step != nil {
		currentLevel = string(step.Level)
	}

	return &model.ProjectModel{
		ID:                       p.ID,
		Name:                     p.Name,
		Scope:                    string(p.Scope),
		Budget:                   p.Budget,
		RequiresBudgetAllocation: p.RequiresBudgetAllocation,
		DepartmentID:             p.Department.ID,
		DepartmentName:           p.Department.Name,
		CreatorID:                p.CreatorID,
		Status:                   string(p.Status),
		CurrentLevel:             currentLevel,
		ComplianceProgramID:      p.ComplianceProgramID,
		Version:                  p.Version,
		Data:                     data,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}, nil
}

// FromModel 从数据模型还原项目,版本号以数据库列为准
func FromModel(pm *model.ProjectModel) (*project.Project, error) {
	var p project.Project
	if err := json.Unmarshal(pm.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project %s: %w", pm.ID, err)
	}
	p.Version = pm.Version
	if p.RequiredDocuments == nil {
		p.RequiredDocuments = []project.RequiredDocument{}
	}
	if p.ApprovalChain == nil {
		p.ApprovalChain = []project.ApprovalStep{}
	}
	if p.WorkflowHistory == nil {
		p.WorkflowHistory = []project.HistoryEntry{}
	}
	return &p, nil
}
