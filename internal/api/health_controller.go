package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/database"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db      *gorm.DB
	sources *client.Sources
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, sources *client.Sources) *HealthController {
	return &HealthController{
		db:      db,
		sources: sources,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 检查数据库连接
	if c.db != nil {
		if !c.checkDatabase(ctx.Request.Context()) {
			status = "unhealthy"
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// 协作服务只报告接入方式,不参与健康判断
	if c.sources != nil {
		checks["documents"] = mode(c.sources.Documents != nil, "stored flags")
		checks["compliance"] = mode(c.sources.StaticCompliance == nil, "static")
		checks["identity"] = mode(c.sources.StaticIdentity == nil, "static")
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func mode(remote bool, fallback string) string {
	if remote {
		return "http"
	}
	return fallback
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return database.CheckHealth(c.db.WithContext(ctx))
}
