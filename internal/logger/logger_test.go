package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewFromConfig_JSON 测试 JSON 格式日志包含默认字段
func TestNewFromConfig_JSON(t *testing.T) {
	l, err := logger.NewFromConfig(&config.LogConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("project_id", "p-1").Debug("step approved")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step approved", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "p-1", entry["project_id"])
	assert.Equal(t, logger.ServiceName, entry["service"])
}

// TestNewFromConfig_InvalidLevel 非法级别回退到 info
func TestNewFromConfig_InvalidLevel(t *testing.T) {
	l, err := logger.NewFromConfig(&config.LogConfig{Level: "loud", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

// TestNewFromConfig_File 测试文件输出
func TestNewFromConfig_File(t *testing.T) {
	dir := t.TempDir()
	l, err := logger.NewFromConfig(&config.LogConfig{Level: "info", Format: "json", Output: "file", Dir: dir})
	require.NoError(t, err)

	l.Info("written to file")

	data, err := os.ReadFile(filepath.Join(dir, logger.ServiceName+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

// TestGet_Default 测试默认日志记录器
func TestGet_Default(t *testing.T) {
	assert.NotNil(t, logger.Get())
	assert.Same(t, logger.Get(), logger.Get())

	custom := logger.New()
	logger.Set(custom)
	assert.Same(t, custom, logger.Get())
}
