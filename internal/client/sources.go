package client

import (
	"time"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/pkg/statemachine"
)

// Sources 协作服务集合
type Sources struct {
	Documents  statemachine.DocumentSource // 为空表示使用项目中保存的文档状态
	Compliance statemachine.ComplianceSource
	Identity   statemachine.IdentitySource

	// 静态实现,配置热更新时替换数据
	StaticCompliance *StaticComplianceSource
	StaticIdentity   *StaticIdentitySource
	IdentityCache    *IdentityCache
}

// NewSources 根据配置选择 HTTP 或静态实现
func NewSources(cfg *config.Config) *Sources {
	timeout := time.Duration(cfg.Collaborators.TimeoutSeconds) * time.Second
	s := &Sources{}

	if cfg.Collaborators.Documents.URL != "" {
		s.Documents = NewHTTPDocumentSource(cfg.Collaborators.Documents, timeout)
	}

	if cfg.Collaborators.Compliance.URL != "" {
		s.Compliance = NewHTTPComplianceSource(cfg.Collaborators.Compliance, timeout)
	} else {
		s.StaticCompliance = NewStaticComplianceSource(cfg.Compliance.Programs)
		s.Compliance = s.StaticCompliance
	}

	if cfg.Collaborators.Identity.URL != "" {
		ttl := time.Duration(cfg.Identity.CacheTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = time.Minute
		}
		s.IdentityCache = NewIdentityCache(ttl)
		s.Identity = NewCachedIdentitySource(NewHTTPIdentitySource(cfg.Collaborators.Identity, timeout), s.IdentityCache)
	} else {
		s.StaticIdentity = NewStaticIdentitySource(cfg.Identity.Users)
		s.Identity = s.StaticIdentity
	}

	return s
}

// Reload 配置变更时刷新静态数据和缓存
func (s *Sources) Reload(cfg *config.Config) {
	if s.StaticCompliance != nil {
		s.StaticCompliance.SetPrograms(cfg.Compliance.Programs)
	}
	if s.StaticIdentity != nil {
		s.StaticIdentity.SetUsers(cfg.Identity.Users)
	}
	if s.IdentityCache != nil {
		s.IdentityCache.Clear()
	}
}
