package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/service"
)

// ActorMiddleware 从网关传入的请求头中读取操作人,连同请求来源写入 request context
// 身份解析在服务层完成,这里不做校验
func ActorMiddleware(header string) gin.HandlerFunc {
	if header == "" {
		header = "X-User-ID"
	}

	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if userID != "" {
			c.Set("user_id", userID)
		}

		ctx := service.WithRequestInfo(c.Request.Context(), service.RequestInfo{
			UserID:    userID,
			RequestID: c.GetString("request_id"),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
