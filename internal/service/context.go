package service

import "context"

type contextKey string

// 请求上下文中的键,由 API 中间件写入
const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyIP        contextKey = "ip"
	ContextKeyUserAgent contextKey = "user_agent"
)

// RequestInfo 请求来源信息
type RequestInfo struct {
	UserID    string
	RequestID string
	IP        string
	UserAgent string
}

// WithRequestInfo 将请求来源信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, info.UserID)
	ctx = context.WithValue(ctx, ContextKeyRequestID, info.RequestID)
	ctx = context.WithValue(ctx, ContextKeyIP, info.IP)
	return context.WithValue(ctx, ContextKeyUserAgent, info.UserAgent)
}

// WithUserID 将操作人写入 context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetUserID 从 context 获取操作人 ID
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyUserID)
}

// GetRequestID 从 context 获取请求 ID
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyRequestID)
}

// GetClientIP 从 context 获取客户端 IP
func GetClientIP(ctx context.Context) string {
	return stringValue(ctx, ContextKeyIP)
}

// GetUserAgent 从 context 获取 User Agent
func GetUserAgent(ctx context.Context) string {
	return stringValue(ctx, ContextKeyUserAgent)
}
