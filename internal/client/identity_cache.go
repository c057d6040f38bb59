package client

import (
	"context"
	"sync"
	"time"

	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/statemachine"
)

// IdentityCache 用户身份缓存
type IdentityCache struct {
	cache *sync.Map
	ttl   time.Duration
	now   func() time.Time
}

// cacheEntry 缓存条目
type cacheEntry struct {
	user      project.User
	expiresAt time.Time
}

// NewIdentityCache 创建用户身份缓存
func NewIdentityCache(ttl time.Duration) *IdentityCache {
	return &IdentityCache{
		cache: &sync.Map{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get 获取缓存
func (c *IdentityCache) Get(userID string) (*project.User, bool) {
	val, found := c.cache.Load(userID)
	if !found {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		// 已过期,删除
		c.cache.Delete(userID)
		return nil, false
	}

	u := entry.user
	return &u, true
}

// Set 设置缓存
func (c *IdentityCache) Set(user project.User) {
	c.cache.Store(user.ID, &cacheEntry{
		user:      user,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Clear 清空缓存
func (c *IdentityCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

// CachedIdentitySource 带缓存的身份查询
type CachedIdentitySource struct {
	source statemachine.IdentitySource
	cache  *IdentityCache
}

// NewCachedIdentitySource 创建带缓存的身份查询
func NewCachedIdentitySource(source statemachine.IdentitySource, cache *IdentityCache) *CachedIdentitySource {
	return &CachedIdentitySource{source: source, cache: cache}
}

// GetUser 查询用户(带缓存),查询失败不写缓存
func (c *CachedIdentitySource) GetUser(ctx context.Context, userID string) (*project.User, error) {
	if u, found := c.cache.Get(userID); found {
		return u, nil
	}

	u, err := c.source.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(*u)
	return u, nil
}
