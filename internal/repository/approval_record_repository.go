package repository

import (
	"github.com/mautops/project-approval/internal/model"
	"gorm.io/gorm"
)

// ApprovalRecordRepository 审批记录仓储接口
type ApprovalRecordRepository interface {
	Save(record *model.ApprovalRecordModel) error
	FindByProjectID(projectID string) ([]*model.ApprovalRecordModel, error)
	CountRejectionsByReason() (map[string]int64, error)
}

// approvalRecordRepository 审批记录仓储实现
type approvalRecordRepository struct {
	db *gorm.DB
}

// NewApprovalRecordRepository 创建审批记录仓储
func NewApprovalRecordRepository(db *gorm.DB) ApprovalRecordRepository {
	return &approvalRecordRepository{db: db}
}

// Save 保存审批记录
func (r *approvalRecordRepository) Save(record *model.ApprovalRecordModel) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.db.Save(record).Error
}

// FindByProjectID 根据项目 ID 查找审批记录
func (r *approvalRecordRepository) FindByProjectID(projectID string) ([]*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	err := r.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&records).Error
	return records, err
}

// CountRejectionsByReason 按驳回原因统计驳回次数
// 未填写原因的记录归入 other
func (r *approvalRecordRepository) CountRejectionsByReason() (map[string]int64, error) {
	var rows []struct {
		ReasonCategory string
		Count          int64
	}
	err := r.db.Model(&model.ApprovalRecordModel{}).
		Select("COALESCE(NULLIF(reason_category, ''), 'other') AS reason_category, COUNT(*) AS count").
		Where("result = ?", "reject").
		Group("COALESCE(NULLIF(reason_category, ''), 'other')").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ReasonCategory] += row.Count
	}
	return counts, nil
}
