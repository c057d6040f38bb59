package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
)

// httpClient 协作服务 HTTP 客户端
type httpClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newHTTPClient(endpoint config.ServiceEndpoint, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL:    strings.TrimRight(endpoint.URL, "/"),
		token:      endpoint.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StatusError 协作服务返回非 2xx 状态码
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// getJSON 发送 GET 请求并解码 JSON 响应
func (c *httpClient) getJSON(ctx context.Context, path string, out interface{}) error {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

// HTTPDocumentSource 文档服务客户端
type HTTPDocumentSource struct {
	client *httpClient
}

// NewHTTPDocumentSource 创建文档服务客户端
func NewHTTPDocumentSource(endpoint config.ServiceEndpoint, timeout time.Duration) *HTTPDocumentSource {
	return &HTTPDocumentSource{client: newHTTPClient(endpoint, timeout)}
}

// GetRequiredDocuments GET {url}/projects/{id}/documents
func (s *HTTPDocumentSource) GetRequiredDocuments(ctx context.Context, projectID string) ([]project.RequiredDocument, error) {
	var docs []project.RequiredDocument
	if err := s.client.getJSON(ctx, "/projects/"+url.PathEscape(projectID)+"/documents", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// HTTPComplianceSource 合规服务客户端
type HTTPComplianceSource struct {
	client *httpClient
}

// NewHTTPComplianceSource 创建合规服务客户端
func NewHTTPComplianceSource(endpoint config.ServiceEndpoint, timeout time.Duration) *HTTPComplianceSource {
	return &HTTPComplianceSource{client: newHTTPClient(endpoint, timeout)}
}

// GetCompliantPrograms GET {url}/programs?status=compliant
func (s *HTTPComplianceSource) GetCompliantPrograms(ctx context.Context) ([]statemachine.ComplianceProgram, error) {
	var programs []statemachine.ComplianceProgram
	if err := s.client.getJSON(ctx, "/programs?status=compliant", &programs); err != nil {
		return nil, err
	}
	return programs, nil
}

// HTTPIdentitySource 身份服务客户端
type HTTPIdentitySource struct {
	client *httpClient
}

// NewHTTPIdentitySource 创建身份服务客户端
func NewHTTPIdentitySource(endpoint config.ServiceEndpoint, timeout time.Duration) *HTTPIdentitySource {
	return &HTTPIdentitySource{client: newHTTPClient(endpoint, timeout)}
}

// GetUser GET {url}/users/{id},404 返回 ErrUserNotFound
func (s *HTTPIdentitySource) GetUser(ctx context.Context, userID string) (*project.User, error) {
	var user project.User
	if err := s.client.getJSON(ctx, "/users/"+url.PathEscape(userID), &user); err != nil {
		if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.ID == "" {
		user.ID = userID
	}
	if user.ID != userID {
		return nil, fmt.Errorf("%w: requested %q, got %q", ErrUserMismatch, userID, user.ID)
	}
	return &user, nil
}
