package repository

import (
	"chat-dumper-go/internal/model"

	"gorm.io/gorm"
)

// ExportRecordRepository 定义了导出审计记录的持久化操作。
type ExportRecordRepository interface {
	Create(record *model.ExportRecord) error
	FindBySession(sessionID string) ([]model.ExportRecord, error)
	DeleteBySession(sessionID string) error
}

type exportRecordRepository struct {
	db *gorm.DB
}

// NewExportRecordRepository 创建一个新的 ExportRecordRepository 实例。
func NewExportRecordRepository(db *gorm.DB) ExportRecordRepository {
	return &exportRecordRepository{db: db}
}

// Create 写入一条审计记录。
func (r *exportRecordRepository) Create(record *model.ExportRecord) error {
	return r.db.Create(record).Error
}

// FindBySession 按创建时间倒序返回某个会话的导出记录。
func (r *exportRecordRepository) FindBySession(sessionID string) ([]model.ExportRecord, error) {
	var records []model.ExportRecord
	err := r.db.Where("session_id = ?", sessionID).Order("created_at desc").Find(&records).Error
	return records, err
}

// DeleteBySession 删除某个会话的全部导出记录。
func (r *exportRecordRepository) DeleteBySession(sessionID string) error {
	return r.db.Where("session_id = ?", sessionID).Delete(&model.ExportRecord{}).Error
}
