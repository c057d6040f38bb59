package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 从 YAML 文件加载策略表,path 为空时返回内置策略表
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	// #nosec G304 -- 路径来自运维配置
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return Parse(data)
}

// Parse 解析 YAML 格式的策略表
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &t, nil
}

// Marshal 将策略表序列化为 YAML
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}
