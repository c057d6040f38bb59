package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/project-approval/internal/client"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStaticComplianceSource 测试静态合规方案
func TestStaticComplianceSource(t *testing.T) {
	source := client.NewStaticComplianceSource([]config.ComplianceProgramConfig{
		{ID: "cp-1", Name: "Vendor", Items: []config.ComplianceItemConfig{{ID: "kyc", Status: "compliant"}}},
		{ID: "cp-2", Name: "Data", Items: []config.ComplianceItemConfig{{ID: "dpa", Name: "DPA signed", Status: "pending"}}},
	})

	programs, err := source.GetCompliantPrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 2)
	assert.True(t, programs[0].IsCompliant())
	assert.False(t, programs[1].IsCompliant())

	source.SetPrograms(nil)
	programs, err = source.GetCompliantPrograms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, programs)
}

// TestStaticIdentitySource 测试静态用户目录
func TestStaticIdentitySource(t *testing.T) {
	source := client.NewStaticIdentitySource([]config.UserConfig{
		{ID: "u-1", RoleLevel: 3, DepartmentID: "d-fin", DepartmentName: "Finance & Accounting"},
	})

	u, err := source.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.RoleLevel)
	assert.Equal(t, "Finance & Accounting", u.DepartmentName)

	_, err = source.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, client.ErrUserNotFound)
}

// TestHTTPSources 测试 HTTP 协作服务客户端
func TestHTTPSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects/p-1/documents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]project.RequiredDocument{{DocumentType: "proposal", IsSubmitted: true}})
	})
	mux.HandleFunc("/programs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "compliant", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[{"id":"cp-1","name":"Vendor","items":[{"id":"kyc","status":"compliant"}]}]`))
	})
	mux.HandleFunc("/users/u-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"userId":"u-1","roleLevel":4,"departmentName":"Executive Office"}`))
	})
	mux.HandleFunc("/users/u-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"userId":"u-admin","roleLevel":5}`))
	})
	mux.HandleFunc("/users/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	endpoint := config.ServiceEndpoint{URL: server.URL + "/", Token: "secret"}
	ctx := context.Background()

	docs, err := client.NewHTTPDocumentSource(endpoint, time.Second).GetRequiredDocuments(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].IsSubmitted)

	programs, err := client.NewHTTPComplianceSource(endpoint, time.Second).GetCompliantPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.True(t, programs[0].IsCompliant())

	identity := client.NewHTTPIdentitySource(endpoint, time.Second)
	u, err := identity.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 4, u.RoleLevel)

	_, err = identity.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrUserNotFound)

	u, err = identity.GetUser(ctx, "u-2")
	assert.ErrorIs(t, err, client.ErrUserMismatch)
	assert.Nil(t, u)

	_, err = identity.GetUser(ctx, "broken")
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

type countingIdentity struct {
	calls int32
}

func (c *countingIdentity) GetUser(ctx context.Context, userID string) (*project.User, error) {
	atomic.AddInt32(&c.calls, 1)
	if userID == "nobody" {
		return nil, client.ErrUserNotFound
	}
	return &project.User{ID: userID, RoleLevel: 2}, nil
}

// TestCachedIdentitySource 测试身份缓存
func TestCachedIdentitySource(t *testing.T) {
	source := &countingIdentity{}
	cache := client.NewIdentityCache(time.Minute)
	cached := client.NewCachedIdentitySource(source, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := cached.GetUser(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", u.ID)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls))

	_, err := cached.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, client.ErrUserNotFound)
	_, _ = cached.GetUser(ctx, "nobody")
	assert.Equal(t, int32(3), atomic.LoadInt32(&source.calls), "errors are not cached")

	cache.Clear()
	_, err = cached.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&source.calls))
}

// TestNewSources 测试根据配置选择实现
func TestNewSources(t *testing.T) {
	cfg := config.Default()
	cfg.Identity.Users = []config.UserConfig{{ID: "u-1", RoleLevel: 1}}

	sources := client.NewSources(cfg)
	assert.Nil(t, sources.Documents)
	require.NotNil(t, sources.StaticIdentity)
	require.NotNil(t, sources.StaticCompliance)

	_, err := sources.Identity.GetUser(context.Background(), "u-2")
	assert.ErrorIs(t, err, client.ErrUserNotFound)

	cfg.Identity.Users = append(cfg.Identity.Users, config.UserConfig{ID: "u-2", RoleLevel: 5})
	sources.Reload(cfg)
	u, err := sources.Identity.GetUser(context.Background(), "u-2")
	require.NoError(t, err)
	assert.Equal(t, 5, u.RoleLevel)

	cfg.Collaborators.Documents.URL = "http://documents.local"
	cfg.Collaborators.Identity.URL = "http://identity.local"
	sources = client.NewSources(cfg)
	assert.NotNil(t, sources.Documents)
	assert.NotNil(t, sources.IdentityCache)
	assert.Nil(t, sources.StaticIdentity)
}
