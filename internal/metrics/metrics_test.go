package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/database"
	"github.com/mautops/project-approval/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

// TestRecordHelpers 测试指标记录
func TestRecordHelpers(t *testing.T) {
	metrics.RecordAPIRequest("POST", "/api/v1/projects/:id/approve", 200, 0.01)
	metrics.RecordProjectCreated("external", "high")
	metrics.RecordApprovalAction("approve", "finance")
	metrics.RecordWorkflowError("ConcurrentModification")

	body := scrape(t)
	assert.Contains(t, body, `projects_created_total{band="high",scope="external"}`)
	assert.Contains(t, body, `approval_actions_total{action="approve",level="finance"}`)
	assert.Contains(t, body, `workflow_errors_total{kind="ConcurrentModification"}`)
	assert.Contains(t, body, "workflow_conflicts_total")
	assert.Contains(t, body, `api_requests_total{method="POST",path="/api/v1/projects/:id/approve",status="OK"}`)
}

type fixedCounter map[string]int64

func (f fixedCounter) CountByStatus() (map[string]int64, error) {
	return f, nil
}

// TestCollector_CollectOnce 测试收集器更新状态分布
func TestCollector_CollectOnce(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)

	collector := metrics.NewCollector(db, fixedCounter{"pending_finance_approval": 3}, time.Hour, nil)
	collector.CollectOnce()

	body := scrape(t)
	assert.Contains(t, body, `projects_by_status{status="pending_finance_approval"} 3`)
	assert.True(t, strings.Contains(body, "database_connections_max 1"))

	collector.Start()
	collector.Stop()
}

// TestUpdateDatabaseConnections_Nil 测试空连接
func TestUpdateDatabaseConnections_Nil(t *testing.T) {
	assert.Error(t, metrics.UpdateDatabaseConnections(nil))
}
