package statemachine

import (
	"context"

	"github.com/mautops/project-approval/pkg/project"
)

// ComplianceItemCompliant 合规项的合规状态
const ComplianceItemCompliant = "compliant"

// ComplianceItem 合规项
type ComplianceItem struct {
	ID     string `json:"id,omitempty" mapstructure:"id"`
	Name   string `json:"name,omitempty" mapstructure:"name"`
	Status string `json:"status" mapstructure:"status"`
}

// ComplianceProgram 合规方案,由外部合规服务维护
type ComplianceProgram struct {
	ID       string           `json:"id" mapstructure:"id"`
	Name     string           `json:"name" mapstructure:"name"`
	Category string           `json:"category" mapstructure:"category"`
	Items    []ComplianceItem `json:"items" mapstructure:"items"`
}

// IsCompliant 所有合规项都处于 compliant 状态
func (p ComplianceProgram) IsCompliant() bool {
	for _, item := range p.Items {
		if item.Status != ComplianceItemCompliant {
			return false
		}
	}
	return true
}

// NonCompliantItems 返回未合规项的名称
func (p ComplianceProgram) NonCompliantItems() []string {
	items := make([]string, 0)
	for _, item := range p.Items {
		if item.Status != ComplianceItemCompliant {
			name := item.Name
			if name == "" {
				name = item.ID
			}
			items = append(items, name)
		}
	}
	return items
}

// ComplianceSource 合规方案查询
type ComplianceSource interface {
	GetCompliantPrograms(ctx context.Context) ([]ComplianceProgram, error)
}

// DocumentSource 项目文档状态查询
type DocumentSource interface {
	GetRequiredDocuments(ctx context.Context, projectID string) ([]project.RequiredDocument, error)
}

// IdentitySource 用户身份查询
type IdentitySource interface {
	GetUser(ctx context.Context, userID string) (*project.User, error)
}
