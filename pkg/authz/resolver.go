package authz

import (
	"fmt"
	"sync"

	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
)

// 默认角色级别
const (
	DefaultHODThreshold = 3
	DefaultTopRoleLevel = 5
)

// Config 授权配置
type Config struct {
	HODThreshold int // 部门负责人级别
	TopRoleLevel int // 平台最高权限级别
}

// Resolver 审批授权判断
type Resolver struct {
	mu  sync.RWMutex
	cfg Config
}

// NewResolver 创建授权判断器,未设置的级别使用默认值
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: normalize(cfg)}
}

func normalize(cfg Config) Config {
	if cfg.HODThreshold <= 0 {
		cfg.HODThreshold = DefaultHODThreshold
	}
	if cfg.TopRoleLevel <= 0 {
		cfg.TopRoleLevel = DefaultTopRoleLevel
	}
	return cfg
}

// SetConfig 更新授权配置(配置热更新)
func (r *Resolver) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = normalize(cfg)
}

// Config 返回当前授权配置
func (r *Resolver) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// IsTopTier 用户是否为最高权限级别
func (r *Resolver) IsTopTier(user project.User) bool {
	return user.RoleLevel >= r.Config().TopRoleLevel
}

// CandidateLevels 返回用户可能处理的审批级别,all 为 true 时表示不限级别
// 结果用于列表预筛选,最终仍以 CanAct 为准
func (r *Resolver) CandidateLevels(user project.User) (levels []types.Level, all bool) {
	cfg := r.Config()
	if user.RoleLevel >= cfg.TopRoleLevel {
		return nil, true
	}
	if user.RoleLevel < cfg.HODThreshold {
		return nil, false
	}

	if user.DepartmentID != "" {
		levels = append(levels, types.LevelHOD)
	}
	switch user.DepartmentName {
	case types.DepartmentProjectManagement:
		levels = append(levels, types.LevelProjectManagement, types.LevelDepartment)
	case types.DepartmentFinance:
		levels = append(levels, types.LevelFinance, types.LevelBudgetAllocation)
	case types.DepartmentLegalCompliance:
		levels = append(levels, types.LevelLegalCompliance)
	case types.DepartmentExecutive:
		levels = append(levels, types.LevelExecutive)
	}
	return levels, false
}

// CanAct 判断用户能否处理该审批步骤
func (r *Resolver) CanAct(user project.User, step *project.ApprovalStep, p *project.Project) bool {
	return r.Explain(user, step, p) == nil
}

// Explain 返回拒绝授权的原因,允许时返回 nil
func (r *Resolver) Explain(user project.User, step *project.ApprovalStep, p *project.Project) error {
	if step == nil || p == nil {
		return fmt.Errorf("no step to act on")
	}

	cfg := r.Config()

	// 1. 不能审批自己创建的项目
	if user.ID == p.CreatorID {
		return fmt.Errorf("user %q created the project and cannot approve it", user.ID)
	}

	// 2. 最高权限直接放行
	if user.RoleLevel >= cfg.TopRoleLevel {
		return nil
	}

	// 3. 按级别判断
	if user.RoleLevel < cfg.HODThreshold {
		return fmt.Errorf("role level %d is below the department head threshold %d", user.RoleLevel, cfg.HODThreshold)
	}

	switch step.Level {
	case types.LevelHOD:
		if step.DepartmentRef == "" {
			return fmt.Errorf("hod step has no department")
		}
		if user.DepartmentID != step.DepartmentRef {
			return fmt.Errorf("hod step belongs to department %q, user is in %q", step.DepartmentRef, user.DepartmentID)
		}
		return nil
	case types.LevelProjectManagement, types.LevelDepartment:
		return requireDepartment(user, step.Level, types.DepartmentProjectManagement)
	case types.LevelFinance, types.LevelBudgetAllocation:
		return requireDepartment(user, step.Level, types.DepartmentFinance)
	case types.LevelLegalCompliance:
		return requireDepartment(user, step.Level, types.DepartmentLegalCompliance)
	case types.LevelExecutive:
		return requireDepartment(user, step.Level, types.DepartmentExecutive)
	}

	return fmt.Errorf("no approver rule for level %q", step.Level)
}

func requireDepartment(user project.User, level types.Level, department string) error {
	if user.DepartmentName != department {
		return fmt.Errorf("%s step requires department %q, user is in %q", level, department, user.DepartmentName)
	}
	return nil
}
