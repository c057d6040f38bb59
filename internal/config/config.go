package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mautops/project-approval/pkg/types"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env           string              `mapstructure:"env"` // 环境: development, production
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Log           LogConfig           `mapstructure:"log"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Workflow      WorkflowConfig      `mapstructure:"workflow"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Compliance    ComplianceConfig    `mapstructure:"compliance"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Events        EventsConfig        `mapstructure:"events"`
	Webhooks      []WebhookConfig     `mapstructure:"webhooks"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
	Dir    string `mapstructure:"dir"`    // 日志文件目录
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Exporter    string `mapstructure:"exporter"` // stdout
}

// WorkflowConfig 审批流程配置
type WorkflowConfig struct {
	HODThreshold             int      `mapstructure:"hod_threshold"`
	TopRoleLevel             int      `mapstructure:"top_role_level"`
	ImmediateExecutionScopes []string `mapstructure:"immediate_execution_scopes"`
	PolicyFile               string   `mapstructure:"policy_file"`
}

// ServiceEndpoint 外部协作服务地址
type ServiceEndpoint struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// CollaboratorsConfig 外部协作服务配置
type CollaboratorsConfig struct {
	Documents      ServiceEndpoint `mapstructure:"documents"`
	Compliance     ServiceEndpoint `mapstructure:"compliance"`
	Identity       ServiceEndpoint `mapstructure:"identity"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
}

// ComplianceItemConfig 合规项
type ComplianceItemConfig struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Status string `mapstructure:"status"`
}

// ComplianceProgramConfig 静态配置的合规方案
type ComplianceProgramConfig struct {
	ID       string                 `mapstructure:"id"`
	Name     string                 `mapstructure:"name"`
	Category string                 `mapstructure:"category"`
	Items    []ComplianceItemConfig `mapstructure:"items"`
}

// ComplianceConfig 合规方案配置(未配置合规服务时使用)
type ComplianceConfig struct {
	Programs []ComplianceProgramConfig `mapstructure:"programs"`
}

// UserConfig 静态配置的用户
type UserConfig struct {
	ID             string `mapstructure:"id"`
	RoleLevel      int    `mapstructure:"role_level"`
	DepartmentID   string `mapstructure:"department_id"`
	DepartmentName string `mapstructure:"department_name"`
}

// IdentityConfig 身份配置(未配置身份服务时使用)
type IdentityConfig struct {
	Header          string       `mapstructure:"header"` // 网关传递用户 ID 的请求头
	CacheTTLSeconds int          `mapstructure:"cache_ttl_seconds"`
	Users           []UserConfig `mapstructure:"users"`
}

// EventsConfig 事件推送配置
type EventsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueSize  int `mapstructure:"queue_size"`
	MaxRetries int `mapstructure:"max_retries"`
}

// WebhookAuthConfig Webhook 认证
type WebhookAuthConfig struct {
	Type  string `mapstructure:"type"` // bearer, basic, header
	Key   string `mapstructure:"key"`
	Token string `mapstructure:"token"`
}

// WebhookConfig Webhook 配置
type WebhookConfig struct {
	URL     string             `mapstructure:"url"`
	Method  string             `mapstructure:"method"`
	Headers map[string]string  `mapstructure:"headers"`
	Auth    *WebhookAuthConfig `mapstructure:"auth"`
	Events  []string           `mapstructure:"events"` // 为空表示订阅所有事件
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.project-approval")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate 校验审批相关配置
// 热更新时校验失败的配置不会生效
func (c *Config) Validate() error {
	var errs []error

	w := c.Workflow
	if w.HODThreshold < 1 {
		errs = append(errs, fmt.Errorf("workflow.hod_threshold must be at least 1, got %d", w.HODThreshold))
	}
	if w.TopRoleLevel <= w.HODThreshold {
		errs = append(errs, fmt.Errorf("workflow.top_role_level (%d) must be above hod_threshold (%d)", w.TopRoleLevel, w.HODThreshold))
	}
	for _, s := range w.ImmediateExecutionScopes {
		if !types.Scope(s).IsValid() {
			errs = append(errs, fmt.Errorf("workflow.immediate_execution_scopes: unknown scope %q", s))
		}
	}

	seen := make(map[string]bool, len(c.Identity.Users))
	for i, u := range c.Identity.Users {
		switch {
		case u.ID == "":
			errs = append(errs, fmt.Errorf("identity.users[%d]: id is required", i))
		case seen[u.ID]:
			errs = append(errs, fmt.Errorf("identity.users[%d]: duplicate id %q", i, u.ID))
		}
		seen[u.ID] = true
	}

	for i, p := range c.Compliance.Programs {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("compliance.programs[%d]: id is required", i))
		}
	}

	return errors.Join(errs...)
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "project-approval.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "project_approval")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.dir", "logs")

	// 限流
	v.SetDefault("rate_limit.enabled", env == "production")
	v.SetDefault("rate_limit.rps", 100)
	v.SetDefault("rate_limit.burst", 200)

	// 链路追踪
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "project-approval")
	v.SetDefault("tracing.exporter", "stdout")

	// 审批流程
	v.SetDefault("workflow.hod_threshold", 3)
	v.SetDefault("workflow.top_role_level", 5)
	v.SetDefault("workflow.immediate_execution_scopes", []string{})
	v.SetDefault("workflow.policy_file", "")

	// 外部协作服务
	v.SetDefault("collaborators.timeout_seconds", 10)

	// 身份
	v.SetDefault("identity.header", "X-User-ID")
	v.SetDefault("identity.cache_ttl_seconds", 60)

	// 事件推送
	v.SetDefault("events.workers", 5)
	v.SetDefault("events.queue_size", 1000)
	v.SetDefault("events.max_retries", 3)
}
