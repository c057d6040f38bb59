package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/project-approval/internal/utils"
)

// newUpgrader 根据允许的来源创建 Upgrader, "*" 表示不限制
func newUpgrader(allowedOrigins []string) *gorillaWS.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// WebSocketHandler 工作流事件实时推送
// GET /ws/projects?project_id=
func WebSocketHandler(hub *Hub, allowedOrigins []string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(c *gin.Context) {
		// 1. 操作人由 ActorMiddleware 写入
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "actor is required"})
			return
		}

		// 2. 可选的项目过滤
		projectID := c.Query("project_id")
		if projectID != "" {
			if err := utils.ValidateProjectID(projectID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid project ID", "detail": err.Error()})
				return
			}
		}

		// 3. 升级连接,失败时 upgrader 已写入响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.WithError(err).Debug("websocket upgrade failed")
			return
		}

		// 4. 创建并注册客户端
		client := NewClient(uuid.New().String(), userID, projectID, hub, conn)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		// 5. 启动 readPump 和 writePump
		go client.WritePump()
		go client.ReadPump()
	}
}
