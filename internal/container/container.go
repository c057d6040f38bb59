package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/project-approval/internal/api"
	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/database"
	"github.com/mautops/project-approval/internal/integration"
	"github.com/mautops/project-approval/internal/metrics"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/internal/websocket"
	"github.com/mautops/project-approval/pkg/authz"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/statemachine"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// metricsInterval 项目状态指标刷新间隔
const metricsInterval = 30 * time.Second

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、审批引擎、协作服务客户端和服务层
type Container struct {
	cfg    *config.Config
	db     *gorm.DB
	logger logrus.FieldLogger

	sources  *client.Sources
	builder  *chain.Builder
	resolver *authz.Resolver
	machine  *statemachine.Machine
	events   integration.EventHandler
	manager  integration.ProjectManager
	hub      *websocket.Hub

	auditLogSvc   service.AuditLogService
	projectSvc    service.ProjectService
	querySvc      service.QueryService
	statisticsSvc service.StatisticsService
	policySvc     service.PolicyService

	collector *metrics.Collector
	started   bool
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewWithDB(cfg, db, logger)
}

// NewWithDB 使用已有数据库连接创建容器
func NewWithDB(cfg *config.Config, db *gorm.DB, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 2. 加载路由策略
	table, err := loadPolicy(cfg.Workflow.PolicyFile)
	if err != nil {
		return nil, err
	}

	// 3. 审批引擎
	sources := client.NewSources(cfg)
	builder := chain.NewBuilder(table, chainOptions(cfg))
	resolver := authz.NewResolver(authzConfig(cfg))
	machine := statemachine.New(builder, resolver, sources.Compliance)

	// 4. 事件发件箱,同时推送给 WebSocket 订阅方
	hub := websocket.NewHub(logger)
	go hub.Run()

	events := integration.NewEventHandler(db, integration.EventHandlerOptions{
		Workers:    cfg.Events.Workers,
		QueueSize:  cfg.Events.QueueSize,
		MaxRetries: cfg.Events.MaxRetries,
		Timeout:    time.Duration(cfg.Collaborators.TimeoutSeconds) * time.Second,
		Webhooks:   cfg.Webhooks,
		Live:       hub,
	}, logger)

	manager := integration.NewProjectManager(db, builder, machine, sources.Documents, events)

	// 5. 服务层
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	c := &Container{
		cfg:           cfg,
		db:            db,
		logger:        logger,
		sources:       sources,
		builder:       builder,
		resolver:      resolver,
		machine:       machine,
		events:        events,
		manager:       manager,
		hub:           hub,
		auditLogSvc:   auditLogSvc,
		projectSvc:    service.NewProjectService(manager, sources.Identity, auditLogSvc, logger),
		querySvc:      service.NewQueryService(db, builder, resolver),
		statisticsSvc: service.NewStatisticsService(db),
		policySvc:     service.NewPolicyService(builder),
		collector:     metrics.NewCollector(db, repository.NewProjectRepository(db), metricsInterval, logger),
	}

	return c, nil
}

func loadPolicy(path string) (*policy.Table, error) {
	if path == "" {
		return policy.Default(), nil
	}
	table, err := policy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy file: %w", err)
	}
	return table, nil
}

func chainOptions(cfg *config.Config) chain.Options {
	scopes := make([]types.Scope, 0, len(cfg.Workflow.ImmediateExecutionScopes))
	for _, s := range cfg.Workflow.ImmediateExecutionScopes {
		scopes = append(scopes, types.Scope(s))
	}
	return chain.Options{
		TopRoleLevel:             cfg.Workflow.TopRoleLevel,
		ImmediateExecutionScopes: scopes,
	}
}

func authzConfig(cfg *config.Config) authz.Config {
	return authz.Config{
		HODThreshold: cfg.Workflow.HODThreshold,
		TopRoleLevel: cfg.Workflow.TopRoleLevel,
	}
}

// Start 启动后台任务: 补发未完成事件、刷新状态指标
func (c *Container) Start(ctx context.Context) {
	n, err := c.events.Redeliver(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to redeliver pending events")
	} else if n > 0 {
		c.logger.WithField("count", n).Info("redelivering pending events")
	}

	c.collector.Start()
	c.started = true
}

// Reload 应用新配置
// 路由策略、审批选项、授权阈值、协作服务静态数据和 Webhook 可以热更新
// 数据库和服务地址需要重启生效
func (c *Container) Reload(cfg *config.Config) {
	if cfg.Workflow.PolicyFile != "" {
		table, err := policy.Load(cfg.Workflow.PolicyFile)
		if err != nil {
			c.logger.WithError(err).Error("keeping previous policy table")
		} else {
			c.builder.SetTable(table)
		}
	}

	c.builder.SetOptions(chainOptions(cfg))
	c.resolver.SetConfig(authzConfig(cfg))
	c.sources.Reload(cfg)
	c.events.SetWebhooks(cfg.Webhooks)
	c.cfg = cfg

	c.logger.Info("configuration reloaded")
}

// Config 当前配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Builder 获取审批链构建器
func (c *Container) Builder() *chain.Builder {
	return c.builder
}

// Resolver 获取授权判断
func (c *Container) Resolver() *authz.Resolver {
	return c.resolver
}

// ProjectManager 获取项目管理器
func (c *Container) ProjectManager() integration.ProjectManager {
	return c.manager
}

// ProjectService 获取项目审批服务
func (c *Container) ProjectService() service.ProjectService {
	return c.projectSvc
}

// QueryService 获取查询服务
func (c *Container) QueryService() service.QueryService {
	return c.querySvc
}

// PolicyService 获取策略服务
func (c *Container) PolicyService() service.PolicyService {
	return c.policySvc
}

// Controllers 创建 HTTP 控制器
func (c *Container) Controllers() *api.Controllers {
	return &api.Controllers{
		Health:     api.NewHealthController(c.db, c.sources),
		Project:    api.NewProjectController(c.projectSvc),
		Query:      api.NewQueryController(c.querySvc, c.projectSvc, c.auditLogSvc),
		Policy:     api.NewPolicyController(c.policySvc),
		Statistics: api.NewStatisticsController(c.statisticsSvc),
		Live:       c.hub,
	}
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.started {
		c.collector.Stop()
	}
	c.events.Stop()
	c.hub.Stop()

	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}

	return nil
}
