package model

import "time"

// ExportRecord 是导出审计记录，只记录统计数字，不保存任何对话内容。
type ExportRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID        string    `gorm:"type:varchar(64);index;not null" json:"sessionId"`
	Entity           string    `gorm:"type:varchar(255);not null" json:"entity"`
	ObjectKey        string    `gorm:"type:varchar(512);not null" json:"objectKey"`
	SizeBytes        int64     `gorm:"not null" json:"sizeBytes"`
	Conversations    int       `gorm:"not null" json:"conversations"`
	Messages         int       `gorm:"not null" json:"messages"`
	RedactedFields   int       `gorm:"not null" json:"redactedFields"`
	RedactedMentions int       `gorm:"not null" json:"redactedMentions"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ExportRecord) TableName() string {
	return "export_records"
}
