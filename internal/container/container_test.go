package container_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/project-approval/internal/api"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/container"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig() *config.Config {
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
	return cfg
}

// TestContainer_NewContainer 测试创建依赖注入容器
func TestContainer_NewContainer(t *testing.T) {
	ctr, err := container.NewContainer(sqliteConfig(), nil)
	require.NoError(t, err)
	defer ctr.Close()

	assert.NotNil(t, ctr.DB())
	assert.NotNil(t, ctr.ProjectManager())
	assert.NotNil(t, ctr.ProjectService())
	assert.NotNil(t, ctr.QueryService())
	assert.Equal(t, policy.Default().Bands, ctr.PolicyService().Table().Bands)

	ctr.Start(context.Background())

	router := api.SetupRoutes(ctr.Controllers(), ctr.Config())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestContainer_PolicyFile 测试从文件加载路由策略
func TestContainer_PolicyFile(t *testing.T) {
	data, err := policy.Default().Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg := sqliteConfig()
	cfg.Workflow.PolicyFile = path
	ctr, err := container.NewContainer(cfg, nil)
	require.NoError(t, err)
	defer ctr.Close()
	assert.Len(t, ctr.Builder().Table().Rules, len(policy.Default().Rules))

	cfg = sqliteConfig()
	cfg.Workflow.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = container.NewContainer(cfg, nil)
	assert.Error(t, err)
}

// TestContainer_Reload 测试配置热更新
func TestContainer_Reload(t *testing.T) {
	ctr, err := container.NewContainer(sqliteConfig(), nil)
	require.NoError(t, err)
	defer ctr.Close()

	next := sqliteConfig()
	next.Workflow.HODThreshold = 4
	next.Workflow.ImmediateExecutionScopes = []string{"personal"}
	next.Workflow.PolicyFile = filepath.Join(t.TempDir(), "broken.yaml")
	ctr.Reload(next)

	assert.Equal(t, 4, ctr.Resolver().Config().HODThreshold)
	assert.Equal(t, []types.Scope{types.ScopePersonal}, ctr.Builder().Options().ImmediateExecutionScopes)
	// 策略文件加载失败时保留原策略
	assert.Equal(t, policy.Default().Bands, ctr.Builder().Table().Bands)
	assert.Same(t, next, ctr.Config())
}
