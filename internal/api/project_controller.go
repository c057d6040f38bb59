package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/internal/utils"
	"github.com/mautops/project-approval/pkg/statemachine"
)

// ProjectController 项目审批控制器
type ProjectController struct {
	projectService service.ProjectService
}

// NewProjectController 创建项目审批控制器
func NewProjectController(projectService service.ProjectService) *ProjectController {
	return &ProjectController{
		projectService: projectService,
	}
}

// validateProjectID 验证项目 ID 并返回错误响应（如果无效）
func validateProjectID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if err := utils.ValidateProjectID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid project ID", err.Error())
		return "", false
	}
	return id, true
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(ctx *gin.Context, obj interface{}) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(obj); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

// Create 创建项目
// POST /api/v1/projects
func (c *ProjectController) Create(ctx *gin.Context) {
	var req service.CreateProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	resp, err := c.projectService.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err, "create project")
		return
	}

	Created(ctx, resp)
}

// Get 获取项目详情
// GET /api/v1/projects/:id
func (c *ProjectController) Get(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	p, err := c.projectService.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err, "get project")
		return
	}

	Success(ctx, p)
}

// Approve 审批通过当前级别
// POST /api/v1/projects/:id/approve
func (c *ProjectController) Approve(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	var req service.ApproveRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	t, err := c.projectService.Approve(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err, "approve project")
		return
	}

	Success(ctx, t)
}

// Reject 驳回当前级别
// POST /api/v1/projects/:id/reject
func (c *ProjectController) Reject(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	var req service.RejectRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	t, err := c.projectService.Reject(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err, "reject project")
		return
	}

	Success(ctx, t)
}

// Resubmit 驳回后重新提交
// POST /api/v1/projects/:id/resubmit
func (c *ProjectController) Resubmit(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	t, err := c.projectService.Resubmit(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err, "resubmit project")
		return
	}

	Success(ctx, t)
}

// Cancel 取消项目
// POST /api/v1/projects/:id/cancel
func (c *ProjectController) Cancel(ctx *gin.Context) {
	c.lifecycle(ctx, "cancel project", c.projectService.Cancel)
}

// StartImplementation 开始实施
// POST /api/v1/projects/:id/implementation
func (c *ProjectController) StartImplementation(ctx *gin.Context) {
	c.lifecycle(ctx, "start implementation", c.projectService.StartImplementation)
}

// Complete 完成项目
// POST /api/v1/projects/:id/complete
func (c *ProjectController) Complete(ctx *gin.Context) {
	c.lifecycle(ctx, "complete project", c.projectService.Complete)
}

type lifecycleFunc func(ctx context.Context, id string, req *service.LifecycleRequest) (*statemachine.Transition, error)

func (c *ProjectController) lifecycle(ctx *gin.Context, operation string, fn lifecycleFunc) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	var req service.LifecycleRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	t, err := fn(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err, operation)
		return
	}

	Success(ctx, t)
}

// SubmitDocument 标记文档已提交
// POST /api/v1/projects/:id/documents/:type/submit
func (c *ProjectController) SubmitDocument(ctx *gin.Context) {
	id, ok := validateProjectID(ctx)
	if !ok {
		return
	}

	var req service.SubmitDocumentRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	p, err := c.projectService.SubmitDocument(ctx.Request.Context(), id, ctx.Param("type"), &req)
	if err != nil {
		HandleError(ctx, err, "submit document")
		return
	}

	Success(ctx, p)
}
