package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/internal/utils"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound 项目不存在
	ErrProjectNotFound = errors.New("project not found")
	// ErrVersionConflict 乐观锁版本冲突
	ErrVersionConflict = errors.New("project version conflict")
)

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	Create(project *model.ProjectModel) error
	FindByID(id string) (*model.ProjectModel, error)
	FindByFilter(filter *ProjectFilter) ([]*model.ProjectModel, int64, error)
	UpdateWithVersion(project *model.ProjectModel, expectedVersion int) error
	CountByStatus() (map[string]int64, error)
}

// ProjectFilter 项目查询过滤器
type ProjectFilter struct {
	Status           *string
	PendingOnly      bool // 只查询存在待审批步骤的项目: pending_*_approval 和 resubmitted
	Scope            *string
	CreatorID        *string
	DepartmentID     *string
	CurrentLevel     *string
	CurrentLevels    []string // 当前审批级别属于其中之一,为空时不限制
	ExcludeCreatorID *string  // 排除该用户创建的项目
	StartTime        *string
	EndTime          *string
	Page             int
	PageSize         int
	SortBy           string
	Order            string
}

// projectRepository 项目仓储实现
type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Create 创建项目
func (r *projectRepository) Create(project *model.ProjectModel) error {
	if err := project.Validate(); err != nil {
		return err
	}
	return r.db.Create(project).Error
}

// FindByID 根据 ID 查找项目
func (r *projectRepository) FindByID(id string) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := r.db.Where("id = ?", id).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// FindByFilter 根据过滤器分页查找项目
func (r *projectRepository) FindByFilter(filter *ProjectFilter) ([]*model.ProjectModel, int64, error) {
	if filter == nil {
		filter = &ProjectFilter{}
	}

	query := r.db.Model(&model.ProjectModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PendingOnly {
		query = query.Where("(status LIKE ? OR status = ?)", "pending_%", "resubmitted")
	}
	if filter.Scope != nil {
		query = query.Where("scope = ?", *filter.Scope)
	}
	if filter.CreatorID != nil {
		query = query.Where("creator_id = ?", *filter.CreatorID)
	}
	if filter.DepartmentID != nil {
		query = query.Where("department_id = ?", *filter.DepartmentID)
	}
	if filter.CurrentLevel != nil {
		query = query.Where("current_level = ?", *filter.CurrentLevel)
	}
	if len(filter.CurrentLevels) > 0 {
		query = query.Where("current_level IN ?", filter.CurrentLevels)
	}
	if filter.ExcludeCreatorID != nil {
		query = query.Where("creator_id <> ?", *filter.ExcludeCreatorID)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := "created_at"
	if filter.SortBy != "" {
		if err := utils.ValidateSortField(filter.SortBy); err != nil {
			return nil, 0, err
		}
		sortBy = utils.SanitizeSortField(filter.SortBy)
	}
	order := utils.SanitizeSortOrder(filter.Order)
	query = query.Order(fmt.Sprintf("%s %s", sortBy, strings.ToLower(order)))

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var projects []*model.ProjectModel
	if err := query.Find(&projects).Error; err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// UpdateWithVersion 基于版本号的条件更新,成功后 project.Version 为新版本
func (r *projectRepository) UpdateWithVersion(project *model.ProjectModel, expectedVersion int) error {
	if err := project.Validate(); err != nil {
		return err
	}

	result := r.db.Model(&model.ProjectModel{}).
		Where("id = ? AND version = ?", project.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":                       project.Name,
			"scope":                      project.Scope,
			"budget":                     project.Budget,
			"requires_budget_allocation": project.RequiresBudgetAllocation,
			"department_id":              project.DepartmentID,
			"department_name":            project.DepartmentName,
			"status":                     project.Status,
			"current_level":              project.CurrentLevel,
			"compliance_program_id":      project.ComplianceProgramID,
			"version":                    expectedVersion + 1,
			"data":                       project.Data,
			"updated_at":                 project.UpdatedAt,
			"approved_at":                project.ApprovedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&model.ProjectModel{}).Where("id = ?", project.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProjectNotFound
		}
		return ErrVersionConflict
	}

	project.Version = expectedVersion + 1
	return nil
}

// CountByStatus 按状态统计项目数
func (r *projectRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.Model(&model.ProjectModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
