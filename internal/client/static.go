// Package client 提供文档、合规、身份三个外部协作服务的实现:
// 配置了服务地址时通过 HTTP 调用,否则使用配置文件中的静态数据。
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserMismatch 身份服务返回的用户与请求的用户不一致
	ErrUserMismatch = errors.New("identity service returned a different user")
)

// StaticComplianceSource 静态合规方案列表
type StaticComplianceSource struct {
	mu       sync.RWMutex
	programs []statemachine.ComplianceProgram
}

// NewStaticComplianceSource 从配置创建合规方案列表
func NewStaticComplianceSource(programs []config.ComplianceProgramConfig) *StaticComplianceSource {
	s := &StaticComplianceSource{}
	s.SetPrograms(programs)
	return s
}

// SetPrograms 替换合规方案列表
func (s *StaticComplianceSource) SetPrograms(programs []config.ComplianceProgramConfig) {
	converted := make([]statemachine.ComplianceProgram, 0, len(programs))
	for _, p := range programs {
		program := statemachine.ComplianceProgram{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Items:    make([]statemachine.ComplianceItem, 0, len(p.Items)),
		}
		for _, item := range p.Items {
			program.Items = append(program.Items, statemachine.ComplianceItem{
				ID:     item.ID,
				Name:   item.Name,
				Status: item.Status,
			})
		}
		converted = append(converted, program)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = converted
}

// GetCompliantPrograms 返回全部合规方案,是否合规由调用方判断
func (s *StaticComplianceSource) GetCompliantPrograms(ctx context.Context) ([]statemachine.ComplianceProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]statemachine.ComplianceProgram, len(s.programs))
	copy(result, s.programs)
	return result, nil
}

// StaticIdentitySource 静态用户目录
type StaticIdentitySource struct {
	mu    sync.RWMutex
	users map[string]project.User
}

// NewStaticIdentitySource 从配置创建用户目录
func NewStaticIdentitySource(users []config.UserConfig) *StaticIdentitySource {
	s := &StaticIdentitySource{}
	s.SetUsers(users)
	return s
}

// SetUsers 替换用户目录
func (s *StaticIdentitySource) SetUsers(users []config.UserConfig) {
	directory := make(map[string]project.User, len(users))
	for _, u := range users {
		directory[u.ID] = project.User{
			ID:             u.ID,
			RoleLevel:      u.RoleLevel,
			DepartmentID:   u.DepartmentID,
			DepartmentName: u.DepartmentName,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = directory
}

// GetUser 查询用户
func (s *StaticIdentitySource) GetUser(ctx context.Context, userID string) (*project.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
