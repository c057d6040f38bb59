package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{statisticsService: statisticsService}
}

// Projects 项目统计
// GET /api/v1/statistics/projects
func (c *StatisticsController) Projects(ctx *gin.Context) {
	byStatus, err := c.statisticsService.GetProjectStatisticsByStatus()
	if err != nil {
		HandleError(ctx, err, "get project statistics")
		return
	}
	byScope, err := c.statisticsService.GetProjectStatisticsByScope()
	if err != nil {
		HandleError(ctx, err, "get project statistics")
		return
	}
	byTime, err := c.statisticsService.GetProjectStatisticsByTime()
	if err != nil {
		HandleError(ctx, err, "get project statistics")
		return
	}

	Success(ctx, gin.H{
		"byStatus": byStatus,
		"byScope":  byScope,
		"byTime":   byTime,
	})
}

// Approvals 审批统计
// GET /api/v1/statistics/approvals
func (c *StatisticsController) Approvals(ctx *gin.Context) {
	stats, err := c.statisticsService.GetApprovalStatistics()
	if err != nil {
		HandleError(ctx, err, "get approval statistics")
		return
	}

	Success(ctx, stats)
}
