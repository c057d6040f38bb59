package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/pkg/types"
)

// PolicyController 路由策略控制器
type PolicyController struct {
	policyService service.PolicyService
}

// NewPolicyController 创建路由策略控制器
func NewPolicyController(policyService service.PolicyService) *PolicyController {
	return &PolicyController{policyService: policyService}
}

// Get 返回当前策略表
// GET /api/v1/policy
func (c *PolicyController) Get(ctx *gin.Context) {
	Success(ctx, c.policyService.Table())
}

// Resolve 预览审批链
// GET /api/v1/policy/resolve?scope=&budget=&requiresBudgetAllocation=
func (c *PolicyController) Resolve(ctx *gin.Context) {
	budget, err := strconv.ParseFloat(ctx.Query("budget"), 64)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid budget", err.Error())
		return
	}

	allocation := false
	if v := ctx.Query("requiresBudgetAllocation"); v != "" {
		allocation, err = strconv.ParseBool(v)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid requiresBudgetAllocation", err.Error())
			return
		}
	}

	res, err := c.policyService.Resolve(types.Scope(ctx.Query("scope")), budget, allocation)
	if err != nil {
		HandleError(ctx, err, "resolve policy")
		return
	}

	Success(ctx, res)
}
