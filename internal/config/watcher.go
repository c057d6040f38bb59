package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 配置监听器,配置文件变化时重新加载并通知订阅者
type ConfigWatcher struct {
	config     *Config
	configPath string
	viper      *viper.Viper
	logger     logrus.FieldLogger
	callbacks  []func(*Config)
	mu         sync.RWMutex
	stopped    bool
	stopMu     sync.RWMutex
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &ConfigWatcher{
		config:     cfg,
		configPath: configPath,
		viper:      v,
		logger:     logger.WithField("component", "config_watcher"),
		callbacks:  make([]func(*Config), 0),
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.stopMu.RLock()
		stopped := w.stopped
		w.stopMu.RUnlock()
		if stopped {
			return
		}

		newCfg, err := unmarshal(w.viper)
		if err != nil {
			w.logger.WithError(err).WithField("file", e.Name).Warn("config change rejected, keeping previous config")
			return
		}

		w.mu.Lock()
		old := w.config
		w.config = newCfg
		callbacks := make([]func(*Config), len(w.callbacks))
		copy(callbacks, w.callbacks)
		w.mu.Unlock()

		w.logger.WithFields(logrus.Fields{
			"file":            e.Name,
			"workflow_change": old == nil || !workflowEqual(old.Workflow, newCfg.Workflow),
		}).Info("config reloaded")

		// 回调在锁外执行
		for _, callback := range callbacks {
			callback(newCfg)
		}
	})
	w.viper.WatchConfig()

	return nil
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	w.stopped = true
}

// GetConfig 获取当前配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func workflowEqual(a, b WorkflowConfig) bool {
	if a.HODThreshold != b.HODThreshold || a.TopRoleLevel != b.TopRoleLevel || a.PolicyFile != b.PolicyFile {
		return false
	}
	if len(a.ImmediateExecutionScopes) != len(b.ImmediateExecutionScopes) {
		return false
	}
	for i := range a.ImmediateExecutionScopes {
		if a.ImmediateExecutionScopes[i] != b.ImmediateExecutionScopes[i] {
			return false
		}
	}
	return true
}
