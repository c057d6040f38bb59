package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidSortField 排序字段格式非法
	ErrInvalidSortField = errors.New("invalid sort field format")
	// ErrUnsortableField 排序字段不在允许列表中
	ErrUnsortableField = errors.New("sort field is not sortable")
)

var sortFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// projectSortFields 项目列表允许排序的列,值为数据库列名
var projectSortFields = map[string]string{
	"created_at":    "created_at",
	"createdAt":     "created_at",
	"updated_at":    "updated_at",
	"updatedAt":     "updated_at",
	"budget":        "budget",
	"name":          "name",
	"status":        "status",
	"scope":         "scope",
	"current_level": "current_level",
	"currentLevel":  "current_level",
}

// ValidateSortField 验证排序字段，防止 SQL 注入
// 只接受项目表中允许排序的列
func ValidateSortField(field string) error {
	if field == "" {
		return errors.New("sort field cannot be empty")
	}
	if !sortFieldPattern.MatchString(field) {
		return ErrInvalidSortField
	}
	if _, ok := projectSortFields[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsortableField, field)
	}
	return nil
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}

// SanitizeSortField 返回排序字段对应的列名,未知字段退回 created_at
func SanitizeSortField(field string) string {
	if column, ok := projectSortFields[field]; ok {
		return column
	}
	return "created_at"
}

// SanitizeSortOrder 清理排序方向
func SanitizeSortOrder(order string) string {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder == "ASC" || upperOrder == "DESC" {
		return upperOrder
	}
	return "DESC" // 默认降序
}
