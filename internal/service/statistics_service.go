package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/internal/repository"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetProjectStatisticsByStatus() ([]*ProjectStatisticsByStatus, error)
	GetProjectStatisticsByScope() ([]*ProjectStatisticsByScope, error)
	GetProjectStatisticsByTime() ([]*ProjectStatisticsByTime, error)
	GetApprovalStatistics() (*ApprovalStatistics, error)
}

// ProjectStatisticsByStatus 按状态统计
type ProjectStatisticsByStatus struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ProjectStatisticsByScope 按项目范围统计
type ProjectStatisticsByScope struct {
	Scope       string  `json:"scope"`
	Count       int64   `json:"count"`
	TotalBudget float64 `json:"totalBudget"`
}

// ProjectStatisticsByTime 按时间统计
type ProjectStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// LevelStatistics 单个审批级别的统计
type LevelStatistics struct {
	Level         string `json:"level"`
	ApprovedCount int64  `json:"approvedCount"`
	RejectedCount int64  `json:"rejectedCount"`
}

// ApprovalStatistics 审批统计
type ApprovalStatistics struct {
	TotalApprovals      int64              `json:"totalApprovals"`
	ApprovedCount       int64              `json:"approvedCount"`
	RejectedCount       int64              `json:"rejectedCount"`
	ApprovalRate        float64            `json:"approvalRate"`
	AverageApprovalTime float64            `json:"averageApprovalTime"` // 单位: 秒,创建到审批链完成
	ByLevel             []*LevelStatistics `json:"byLevel"`
	RejectionsByReason  map[string]int64   `json:"rejectionsByReason"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db         *gorm.DB
	recordRepo repository.ApprovalRecordRepository
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{
		db:         db,
		recordRepo: repository.NewApprovalRecordRepository(db),
	}
}

// GetProjectStatisticsByStatus 按状态统计项目
func (s *statisticsService) GetProjectStatisticsByStatus() ([]*ProjectStatisticsByStatus, error) {
	var results []struct {
		Status string
		Count  int64
	}

	err := s.db.Model(&model.ProjectModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get project statistics by status: %w", err)
	}

	stats := make([]*ProjectStatisticsByStatus, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProjectStatisticsByStatus{
			Status: r.Status,
			Count:  r.Count,
		})
	}

	return stats, nil
}

// GetProjectStatisticsByScope 按范围统计项目数和预算
func (s *statisticsService) GetProjectStatisticsByScope() ([]*ProjectStatisticsByScope, error) {
	var results []struct {
		Scope       string
		Count       int64
		TotalBudget float64
	}

	err := s.db.Model(&model.ProjectModel{}).
		Select("scope, COUNT(*) as count, COALESCE(SUM(budget), 0) as total_budget").
		Group("scope").
		Order("scope").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get project statistics by scope: %w", err)
	}

	stats := make([]*ProjectStatisticsByScope, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProjectStatisticsByScope{
			Scope:       r.Scope,
			Count:       r.Count,
			TotalBudget: r.TotalBudget,
		})
	}

	return stats, nil
}

// GetProjectStatisticsByTime 按创建日期统计项目
func (s *statisticsService) GetProjectStatisticsByTime() ([]*ProjectStatisticsByTime, error) {
	var results []struct {
		Date  string
		Count int64
	}

	err := s.db.Model(&model.ProjectModel{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Group("DATE(created_at)").
		Order("date DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get project statistics by time: %w", err)
	}

	stats := make([]*ProjectStatisticsByTime, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProjectStatisticsByTime{
			Date:  r.Date,
			Count: r.Count,
		})
	}

	return stats, nil
}

// GetApprovalStatistics 获取审批统计
func (s *statisticsService) GetApprovalStatistics() (*ApprovalStatistics, error) {
	var rows []struct {
		Level  string
		Result string
		Count  int64
	}
	err := s.db.Model(&model.ApprovalRecordModel{}).
		Select("level, result, COUNT(*) as count").
		Group("level, result").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count approval records: %w", err)
	}

	stats := &ApprovalStatistics{ByLevel: make([]*LevelStatistics, 0)}
	byLevel := make(map[string]*LevelStatistics)
	for _, r := range rows {
		ls, ok := byLevel[r.Level]
		if !ok {
			ls = &LevelStatistics{Level: r.Level}
			byLevel[r.Level] = ls
		}
		switch r.Result {
		case "approve":
			ls.ApprovedCount += r.Count
			stats.ApprovedCount += r.Count
		case "reject":
			ls.RejectedCount += r.Count
			stats.RejectedCount += r.Count
		}
		stats.TotalApprovals += r.Count
	}
	for _, ls := range byLevel {
		stats.ByLevel = append(stats.ByLevel, ls)
	}
	sort.Slice(stats.ByLevel, func(i, j int) bool {
		return stats.ByLevel[i].Level < stats.ByLevel[j].Level
	})

	if stats.TotalApprovals > 0 {
		stats.ApprovalRate = float64(stats.ApprovedCount) / float64(stats.TotalApprovals) * 100
	}

	if stats.RejectionsByReason, err = s.recordRepo.CountRejectionsByReason(); err != nil {
		return nil, fmt.Errorf("failed to count rejections by reason: %w", err)
	}

	var completed []struct {
		CreatedAt  time.Time
		ApprovedAt *time.Time
	}
	err = s.db.Model(&model.ProjectModel{}).
		Select("created_at, approved_at").
		Where("approved_at IS NOT NULL").
		Scan(&completed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load approved projects: %w", err)
	}

	var total time.Duration
	var n int
	for _, c := range completed {
		if c.ApprovedAt == nil {
			continue
		}
		total += c.ApprovedAt.Sub(c.CreatedAt)
		n++
	}
	if n > 0 {
		stats.AverageApprovalTime = total.Seconds() / float64(n)
	}

	return stats, nil
}
