package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/websocket"
)

// Controllers 路由绑定的控制器集合
type Controllers struct {
	Health     *HealthController
	Project    *ProjectController
	Query      *QueryController
	Policy     *PolicyController
	Statistics *StatisticsController
	Live       *websocket.Hub // 为空时不注册实时推送路由
}

// SetupRoutes 配置路由
func SetupRoutes(ctrls *Controllers, cfg *config.Config) *gin.Engine {
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()

	// 中间件
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing))
	}
	router.Use(ActorMiddleware(cfg.Identity.Header))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	if ctrls.Health != nil {
		router.GET("/health", ctrls.Health.Check)
	}

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由
	if ctrls.Live != nil {
		router.GET("/ws/projects", websocket.WebSocketHandler(ctrls.Live, cfg.CORS.AllowedOrigins))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		projects := v1.Group("/projects")
		{
			projects.POST("", ctrls.Project.Create)
			projects.GET("", ctrls.Query.ListProjects)

			// 当前操作人的待办(必须在 /:id 之前)
			projects.GET("/pending", ctrls.Query.ListPending)

			projects.GET("/:id", ctrls.Project.Get)

			// 审批命令
			projects.POST("/:id/approve", ctrls.Project.Approve)
			projects.POST("/:id/reject", ctrls.Project.Reject)
			projects.POST("/:id/resubmit", ctrls.Project.Resubmit)

			// 生命周期
			projects.POST("/:id/cancel", ctrls.Project.Cancel)
			projects.POST("/:id/implementation", ctrls.Project.StartImplementation)
			projects.POST("/:id/complete", ctrls.Project.Complete)

			projects.POST("/:id/documents/:type/submit", ctrls.Project.SubmitDocument)

			// 查询
			projects.GET("/:id/progress", ctrls.Query.GetProgress)
			projects.GET("/:id/records", ctrls.Query.GetRecords)
			projects.GET("/:id/history", ctrls.Query.GetHistory)
			projects.GET("/:id/workflow-history", ctrls.Query.GetWorkflowHistory)
			projects.GET("/:id/audit-logs", ctrls.Query.GetAuditLogs)
		}

		if ctrls.Policy != nil {
			v1.GET("/policy", ctrls.Policy.Get)
			v1.GET("/policy/resolve", ctrls.Policy.Resolve)
		}

		if ctrls.Statistics != nil {
			statistics := v1.Group("/statistics")
			{
				statistics.GET("/projects", ctrls.Statistics.Projects)
				statistics.GET("/approvals", ctrls.Statistics.Approvals)
			}
		}
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
