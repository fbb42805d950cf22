// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"docuchat-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository 定义了文档摄取台账的操作接口。
type DocumentRepository interface {
	UpsertByFileName(doc *model.Document) error
	MarkIndexed(fileName string, chunkCount int) error
	MarkFailed(fileName string) error
	FindByFileName(fileName string) (*model.Document, error)
	FindAll() ([]*model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// UpsertByFileName 按文件名插入或更新台账记录。
// 文件名唯一：重新摄取同名文件复用同一行。
func (r *documentRepository) UpsertByFileName(doc *model.Document) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_size", "chunk_count", "status", "indexed_at"}),
	}).Create(doc).Error
}

// MarkIndexed 把文档标记为已索引并记录分块数。
func (r *documentRepository) MarkIndexed(fileName string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).
		Where("file_name = ?", fileName).
		Updates(map[string]interface{}{
			"status":      model.DocumentStatusIndexed,
			"chunk_count": chunkCount,
			"indexed_at":  &now,
		}).Error
}

// MarkFailed 把文档标记为摄取失败。
func (r *documentRepository) MarkFailed(fileName string) error {
	return r.db.Model(&model.Document{}).
		Where("file_name = ?", fileName).
		Update("status", model.DocumentStatusFailed).Error
}

// FindByFileName 按文件名查找台账记录。
func (r *documentRepository) FindByFileName(fileName string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("file_name = ?", fileName).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAll 返回全部台账记录，按文件名排序。
func (r *documentRepository) FindAll() ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.Order("file_name asc").Find(&docs).Error
	return docs, err
}
