// Package model 定义了数据库模型与对外的 DTO 结构体。
package model

import "time"

// 文档摄取状态。
const (
	DocumentStatusIndexing = 0
	DocumentStatusIndexed  = 1
	DocumentStatusFailed   = 2
)

// Document 对应于数据库中的 documents 表，是文档摄取的台账。
// 文件名在系统内唯一：重新上传同名文件会覆盖其既有分块。
type Document struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName   string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"fileName"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: indexing, 1: indexed, 2: failed
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt  *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentInfo 是列表接口返回的文档条目。
type DocumentInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// UploadFileInput 是上传接口中单个文件的请求体。
// Content 为 base64 编码的原始文件内容。
type UploadFileInput struct {
	FileName string `json:"filename" binding:"required"`
	Content  string `json:"content" binding:"required"`
}
