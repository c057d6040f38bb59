package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置,未设置的值使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	poolConfig := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if poolConfig.MaxIdleConns == 0 {
		poolConfig.MaxIdleConns = 10
	}
	if poolConfig.MaxOpenConns == 0 {
		poolConfig.MaxOpenConns = 100
	}
	if poolConfig.ConnMaxLifetime == 0 {
		poolConfig.ConnMaxLifetime = 3600 // 1 小时
	}
	if poolConfig.ConnMaxIdleTime == 0 {
		poolConfig.ConnMaxIdleTime = 600 // 10 分钟
	}
	return poolConfig
}

// Connect 连接数据库,根据 driver 选择 postgres 或 sqlite
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(BuildDSN(cfg))
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	poolConfig := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 只允许一个写连接
		poolConfig.MaxOpenConns = 1
		poolConfig.MaxIdleConns = 1
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb,手动建表
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(
			&model.ProjectModel{},
			&model.ApprovalRecordModel{},
			&model.StateHistoryModel{},
			&model.EventModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

var sqliteTables = []struct {
	name string
	ddl  string
}{
	{"projects", `
		CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			scope VARCHAR(32) NOT NULL,
			budget REAL NOT NULL,
			requires_budget_allocation BOOLEAN NOT NULL DEFAULT 0,
			department_id VARCHAR(64),
			department_name VARCHAR(128),
			creator_id VARCHAR(64) NOT NULL,
			status VARCHAR(64) NOT NULL,
			current_level VARCHAR(32),
			compliance_program_id VARCHAR(64),
			version INTEGER NOT NULL DEFAULT 1,
			data TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			approved_at DATETIME
		)`},
	{"approval_records", `
		CREATE TABLE IF NOT EXISTS approval_records (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			level VARCHAR(32) NOT NULL,
			approver VARCHAR(64) NOT NULL,
			result VARCHAR(32) NOT NULL,
			reason_category VARCHAR(64),
			comment TEXT,
			compliance_program_id VARCHAR(64),
			attempt INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`},
	{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			from_status VARCHAR(64),
			to_status VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			data TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			retry_count INTEGER DEFAULT 0,
			last_error TEXT,
			delivered_to TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			actor_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			level VARCHAR(32),
			from_status VARCHAR(64),
			to_status VARCHAR(64),
			outcome VARCHAR(16) NOT NULL,
			error_kind VARCHAR(64),
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`},
}

// createSQLiteTables 为 SQLite 手动创建表(使用 TEXT 替代 jsonb)
func createSQLiteTables(db *gorm.DB) error {
	for _, table := range sqliteTables {
		if err := db.Exec(table.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}

var indexes = []struct {
	name    string
	table   string
	columns string
}{
	{"idx_projects_status_level", "projects", "status, current_level"},
	{"idx_projects_scope", "projects", "scope"},
	{"idx_projects_creator_id", "projects", "creator_id"},
	{"idx_projects_department_id", "projects", "department_id"},
	{"idx_projects_created_at", "projects", "created_at"},
	{"idx_projects_updated_at", "projects", "updated_at"},
	{"idx_records_project_id", "approval_records", "project_id"},
	{"idx_records_approver", "approval_records", "approver"},
	{"idx_records_created_at", "approval_records", "created_at"},
	{"idx_history_project_id", "state_history", "project_id"},
	{"idx_history_created_at", "state_history", "created_at"},
	{"idx_events_status", "events", "status"},
	{"idx_events_project_id", "events", "project_id"},
	{"idx_events_created_at", "events", "created_at"},
	{"idx_audit_project_id", "audit_logs", "project_id, created_at"},
	{"idx_audit_actor_id", "audit_logs", "actor_id"},
	{"idx_audit_outcome", "audit_logs", "outcome, action"},
	{"idx_audit_created_at", "audit_logs", "created_at"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, idx := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL JSONB 字段的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_projects_data_gin ON projects USING GIN (data)").Error; err != nil {
			return fmt.Errorf("failed to create idx_projects_data_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}
