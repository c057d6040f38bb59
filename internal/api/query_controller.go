package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/internal/service"
)

// QueryController 查询控制器
type QueryController struct {
	queryService   service.QueryService
	projectService service.ProjectService
	auditLogSvc    service.AuditLogService
}

// NewQueryController 创建查询控制器
func NewQueryController(queryService service.QueryService, projectService service.ProjectService, auditLogSvc service.AuditLogService) *QueryController {
	return &QueryController{
		queryService:   queryService,
		projectService: projectService,
		auditLogSvc:    auditLogSvc,
	}
}

// optionalQuery 非空查询参数返回指针
func optionalQuery(ctx *gin.Context, key string) *string {
	if v := ctx.Query(key); v != "" {
		return &v
	}
	return nil
}

// pageParams 解析分页参数
func pageParams(ctx *gin.Context) (int, int) {
	page, err := strconv.Atoi(ctx.Query("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	pageSize, err := strconv.Atoi(ctx.Query("page_size"))
	if err != nil || pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// ListProjects 列出项目
// GET /api/v1/projects?status=&scope=&creator_id=&department_id=&current_level=&created_at_start=&created_at_end=&page=&page_size=&sort_by=&order=
func (c *QueryController) ListProjects(ctx *gin.Context) {
	page, pageSize := pageParams(ctx)
	filter := &service.ListProjectsFilter{
		Status:       optionalQuery(ctx, "status"),
		Scope:        optionalQuery(ctx, "scope"),
		CreatorID:    optionalQuery(ctx, "creator_id"),
		DepartmentID: optionalQuery(ctx, "department_id"),
		CurrentLevel: optionalQuery(ctx, "current_level"),
		StartTime:    optionalQuery(ctx, "created_at_start"),
		EndTime:      optionalQuery(ctx, "created_at_end"),
		Page:         page,
		PageSize:     pageSize,
		SortBy:       ctx.Query("sort_by"),
		Order:        ctx.Query("order"),
	}

	projects, total, err := c.queryService.ListProjects(filter)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "failed to list projects", err.Error())
		return
	}

	Paginated(ctx, projects, NewPaginationInfo(page, pageSize, total))
}

// ListPending 列出当前操作人可以处理的项目
// GET /api/v1/projects/pending
func (c *QueryController) ListPending(ctx *gin.Context) {
	actor, err := c.projectService.ResolveActor(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err, "resolve actor")
		return
	}

	page, pageSize := pageParams(ctx)
	projects, total, err := c.queryService.ListPending(*actor, page, pageSize)
	if err != nil {
		HandleError(ctx, err, "list pending projects")
		return
	}

	Paginated(ctx, projects, NewPaginationInfo(page, pageSize, total))
}

// GetProgress 获取审批进度
// GET /api/v1/projects/:id/progress
func (c *QueryController) GetProgress(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	summary, err := c.queryService.GetProgress(id)
	if err != nil {
		HandleError(ctx, err, "get progress")
		return
	}

	Success(ctx, summary)
}

// GetRecords 获取审批记录
// GET /api/v1/projects/:id/records
func (c *QueryController) GetRecords(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	records, err := c.queryService.GetRecords(id)
	if err != nil {
		HandleError(ctx, err, "get records")
		return
	}

	Success(ctx, records)
}

// GetHistory 获取状态历史
// GET /api/v1/projects/:id/history
func (c *QueryController) GetHistory(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	history, err := c.queryService.GetHistory(id)
	if err != nil {
		HandleError(ctx, err, "get history")
		return
	}

	Success(ctx, history)
}

// GetWorkflowHistory 获取工作流历史
// GET /api/v1/projects/:id/workflow-history
func (c *QueryController) GetWorkflowHistory(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	history, err := c.queryService.GetWorkflowHistory(id)
	if err != nil {
		HandleError(ctx, err, "get workflow history")
		return
	}

	Success(ctx, history)
}

// GetAuditLogs 获取项目审计日志
// GET /api/v1/projects/:id/audit-logs?actor_id=&action=&level=&outcome=&page=&page_size=
func (c *QueryController) GetAuditLogs(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	page, pageSize := pageParams(ctx)
	logs, total, err := c.auditLogSvc.List(&repository.AuditLogFilter{
		ProjectID: &id,
		ActorID:   optionalQuery(ctx, "actor_id"),
		Action:    optionalQuery(ctx, "action"),
		Level:     optionalQuery(ctx, "level"),
		Outcome:   optionalQuery(ctx, "outcome"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		HandleError(ctx, err, "get audit logs")
		return
	}

	Paginated(ctx, logs, NewPaginationInfo(page, pageSize, total))
}
