package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault_ResolveRouting 测试内置策略表在各区间的路由结果
func TestDefault_ResolveRouting(t *testing.T) {
	table := policy.Default()

	tests := []struct {
		name       string
		scope      types.Scope
		budget     float64
		allocation bool
		expected   []types.Level
	}{
		{"personal auto approve", types.ScopePersonal, 500_000, false, []types.Level{}},
		{"departmental auto approve at bound", types.ScopeDepartmental, 1_000_000, false, []types.Level{}},
		{"personal with allocation", types.ScopePersonal, 500_000, true, []types.Level{types.LevelFinance, types.LevelExecutive}},
		{"external without allocation", types.ScopeExternal, 2_000_000, false, []types.Level{types.LevelLegalCompliance, types.LevelExecutive}},
		{"external with allocation", types.ScopeExternal, 10_000_000, true, []types.Level{types.LevelLegalCompliance, types.LevelFinance, types.LevelExecutive}},
		{"strategic departmental with allocation", types.ScopeDepartmental, 30_000_000, true, []types.Level{types.LevelFinance, types.LevelExecutive}},
		{"strategic departmental auto approve", types.ScopeDepartmental, 30_000_000, false, []types.Level{}},
		{"strategic external", types.ScopeExternal, 30_000_000, true, []types.Level{types.LevelLegalCompliance, types.LevelFinance, types.LevelExecutive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := table.Resolve(tt.scope, tt.budget, tt.allocation)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy.Levels(reqs))
		})
	}
}

// TestDefault_MiddleBandsIdentical 测试 1M-5M 与 5M-25M 两个区间路由一致
func TestDefault_MiddleBandsIdentical(t *testing.T) {
	table := policy.Default()

	for _, scope := range types.AllScopes() {
		for _, allocation := range []bool{true, false} {
			low, err := table.Resolve(scope, 3_000_000, allocation)
			require.NoError(t, err)
			high, err := table.Resolve(scope, 20_000_000, allocation)
			require.NoError(t, err)
			assert.Equal(t, low, high, "scope=%s allocation=%t", scope, allocation)
		}
	}

	elevated, err := table.Band(3_000_000)
	require.NoError(t, err)
	high, err := table.Band(20_000_000)
	require.NoError(t, err)
	assert.NotEqual(t, elevated.Color, high.Color)
}

// TestBand_InclusiveUpperBound 测试区间上界包含在内
func TestBand_InclusiveUpperBound(t *testing.T) {
	table := policy.Default()

	band, err := table.Band(5_000_000)
	require.NoError(t, err)
	assert.Equal(t, "elevated", band.Name)

	band, err = table.Band(5_000_000.01)
	require.NoError(t, err)
	assert.Equal(t, "high", band.Name)

	band, err = table.Band(1e12)
	require.NoError(t, err)
	assert.Equal(t, "strategic", band.Name)
}

// TestResolve_InvalidInput 测试非法输入
func TestResolve_InvalidInput(t *testing.T) {
	table := policy.Default()

	_, err := table.Resolve(types.ScopePersonal, -1, false)
	assert.ErrorIs(t, err, policy.ErrNegativeBudget)

	_, err = table.Resolve(types.Scope("galactic"), 100, false)
	assert.ErrorIs(t, err, policy.ErrInvalidScope)
}

// TestResolve_NoMatchingRule 测试没有匹配规则的情况
func TestResolve_NoMatchingRule(t *testing.T) {
	table := policy.Default()
	table.Rules = table.Rules[:1]

	_, err := table.Resolve(types.ScopeExternal, 100, false)
	assert.ErrorIs(t, err, policy.ErrNoMatchingRule)
}

const customPolicy = `
version: "2026-q3"
bands:
  - name: small
    upper_bound: 100000
    color: green
  - name: large
    color: red
rules:
  - id: small-internal
    bands: [small]
    scopes: [personal, departmental]
    levels:
      - level: hod
      - level: budget_allocation
        skip: true
        reason: no budget allocation required
  - id: everything-else
    scopes: [personal, departmental, external]
    levels:
      - level: project_management
      - level: executive
`

// TestParse_CustomPolicy 测试从 YAML 加载自定义策略
func TestParse_CustomPolicy(t *testing.T) {
	table, err := policy.Parse([]byte(customPolicy))
	require.NoError(t, err)
	assert.Equal(t, "2026-q3", table.Version)

	reqs, err := table.Resolve(types.ScopePersonal, 50_000, false)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, types.LevelHOD, reqs[0].Level)
	assert.True(t, reqs[1].Skip)
	assert.Equal(t, "no budget allocation required", reqs[1].Reason)

	reqs, err = table.Resolve(types.ScopePersonal, 500_000, false)
	require.NoError(t, err)
	assert.Equal(t, []types.Level{types.LevelProjectManagement, types.LevelExecutive}, policy.Levels(reqs))
}

// TestLoad_FromFile 测试从文件加载策略
func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customPolicy), 0o600))

	table, err := policy.Load(path)
	require.NoError(t, err)
	assert.Len(t, table.Bands, 2)

	table, err = policy.Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", table.Version)

	_, err = policy.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestValidate_RejectsBrokenPolicies 测试非法策略表校验
func TestValidate_RejectsBrokenPolicies(t *testing.T) {
	tests := map[string]string{
		"bounded last band": `
bands:
  - name: only
    upper_bound: 10
rules: []
`,
		"descending bands": `
bands:
  - name: a
    upper_bound: 10
  - name: b
    upper_bound: 5
  - name: c
rules: []
`,
		"unknown level": `
bands:
  - name: all
rules:
  - id: r
    scopes: [personal]
    levels:
      - level: board
`,
		"unknown band reference": `
bands:
  - name: all
rules:
  - id: r
    bands: [tiny]
    scopes: [personal]
    levels: []
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := policy.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	assert.NoError(t, policy.Default().Validate())
}

// TestMarshal_RoundTripsDefault 测试内置策略表可以导出并重新加载
func TestMarshal_RoundTripsDefault(t *testing.T) {
	data, err := policy.Default().Marshal()
	require.NoError(t, err)

	table, err := policy.Parse(data)
	require.NoError(t, err)

	reqs, err := table.Resolve(types.ScopeExternal, 10_000_000, true)
	require.NoError(t, err)
	assert.Equal(t, []types.Level{types.LevelLegalCompliance, types.LevelFinance, types.LevelExecutive}, policy.Levels(reqs))
}
