package api_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/api"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"request_id": c.GetString("request_id"),
			"user_id":    service.GetUserID(c.Request.Context()),
		})
	})
	return router
}

// TestRequestIDMiddleware 测试请求 ID 生成与透传
func TestRequestIDMiddleware(t *testing.T) {
	router := echoRouter(api.RequestIDMiddleware())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(api.RequestIDHeader, "custom-request-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "custom-request-id", w.Header().Get(api.RequestIDHeader))

	// 过长的 ID 会被替换
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(api.RequestIDHeader, strings.Repeat("x", 65))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(api.RequestIDHeader), 36)
}

// TestActorMiddleware 测试操作人写入 request context
func TestActorMiddleware(t *testing.T) {
	router := echoRouter(api.RequestIDMiddleware(), api.ActorMiddleware("X-Operator"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Operator", "  u-legal ")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u-legal"`)
}

// TestRateLimitMiddleware 测试限流
func TestRateLimitMiddleware(t *testing.T) {
	router := echoRouter(api.RateLimitMiddleware(1, 1))

	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "1", w2.Header().Get("Retry-After"))
}

// TestRateLimiter_PerClient 测试按客户端独立计数与空闲清理
func TestRateLimiter_PerClient(t *testing.T) {
	limiter := api.NewRateLimiter(1, 1)
	now := time.Now()

	assert.True(t, limiter.Allow("10.0.0.1", now))
	assert.False(t, limiter.Allow("10.0.0.1", now))
	assert.True(t, limiter.Allow("10.0.0.2", now))
	assert.True(t, limiter.Allow("10.0.0.1", now.Add(time.Second)))
	assert.Equal(t, 2, limiter.Len())

	assert.True(t, limiter.Allow("10.0.0.3", now.Add(time.Hour)))
	assert.Equal(t, 1, limiter.Len())
}

// TestCORSMiddleware 测试 CORS 头与预检请求
func TestCORSMiddleware(t *testing.T) {
	router := echoRouter(api.CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"https://console.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	router.OPTIONS("/test", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// TestSecurityHeadersMiddleware 测试安全头
func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	echoRouter(api.SecurityHeadersMiddleware(false)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	echoRouter(api.SecurityHeadersMiddleware(true)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

// TestToAPIError 测试错误转换
func TestToAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("load: %w", repository.ErrProjectNotFound), http.StatusNotFound},
		{"no actor", service.ErrActorRequired, http.StatusUnauthorized},
		{"unknown actor", service.ErrUnknownActor, http.StatusForbidden},
		{"validation", service.ErrInvalidRejectionReason, http.StatusBadRequest},
		{"conflict", statemachine.NewError(statemachine.KindConcurrentModification, "p-1", "stale"), http.StatusConflict},
		{"bad rejection reason", statemachine.NewError(statemachine.KindInvalidRejectionReason, "p-1", "unknown"), http.StatusBadRequest},
		{"forbidden", statemachine.NewError(statemachine.KindNotAuthorized, "p-1", "nope"), http.StatusForbidden},
		{"compliance", statemachine.NewError(statemachine.KindNonCompliantProgram, "p-1", "bad"), http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, api.ToAPIError(tt.err, "test").Code)
		})
	}
}

// TestErrorHandlerMiddleware 测试 c.Error 统一输出
func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware())
	router.GET("/wrapped", func(c *gin.Context) {
		_ = c.Error(api.WrapError(errors.New("db down"), http.StatusServiceUnavailable, "unavailable"))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wrapped", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db down")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestMetricsHandler 测试 Prometheus 指标端点
func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.RequestLogMiddleware())
	router.GET("/metrics", api.MetricsHandler)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// TestTracing 测试追踪初始化与 span 输出
func TestTracing(t *testing.T) {
	assert.Error(t, api.InitTracing(config.TracingConfig{Exporter: "jaeger"}, nil))

	var buf bytes.Buffer
	cfg := config.TracingConfig{Enabled: true, ServiceName: "project-approval-test", Exporter: "stdout"}
	require.NoError(t, api.InitTracing(cfg, &buf))

	router := echoRouter(api.TracingMiddleware(cfg))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, api.ShutdownTracing(context.Background()))
	assert.Contains(t, buf.String(), "/test")
}
