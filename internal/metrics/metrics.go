package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 项目创建数
	projectsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projects_created_total",
			Help: "Total number of projects created",
		},
		[]string{"scope", "band"},
	)

	// 审批操作数
	approvalActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_actions_total",
			Help: "Total number of approval workflow actions",
		},
		[]string{"action", "level"}, // approve, reject, resubmit, cancel, ...
	)

	// 工作流错误数
	workflowErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_errors_total",
			Help: "Total number of rejected workflow commands by error kind",
		},
		[]string{"kind"},
	)

	// 并发冲突数
	workflowConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_conflicts_total",
			Help: "Total number of concurrent modification conflicts",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 项目状态分布
	projectsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "projects_by_status",
			Help: "Number of projects by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(projectsCreatedTotal)
	prometheus.MustRegister(approvalActionsTotal)
	prometheus.MustRegister(workflowErrorsTotal)
	prometheus.MustRegister(workflowConflictsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(projectsByStatus)

	// 注册 Go 运行时指标(只注册一次)
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordProjectCreated 记录项目创建
func RecordProjectCreated(scope, band string) {
	projectsCreatedTotal.WithLabelValues(scope, band).Inc()
}

// RecordApprovalAction 记录审批操作
func RecordApprovalAction(action, level string) {
	approvalActionsTotal.WithLabelValues(action, level).Inc()
}

// RecordWorkflowError 记录被拒绝的工作流命令
func RecordWorkflowError(kind string) {
	workflowErrorsTotal.WithLabelValues(kind).Inc()
	if kind == "ConcurrentModification" {
		workflowConflictsTotal.Inc()
	}
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateProjectsByStatus 更新项目状态分布指标
func UpdateProjectsByStatus(counts map[string]int64) {
	projectsByStatus.Reset()
	for status, count := range counts {
		projectsByStatus.WithLabelValues(status).Set(float64(count))
	}
}
