package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"docuchat-go/internal/config"
	"docuchat-go/internal/model"
	"docuchat-go/internal/notify"
	"docuchat-go/internal/pipeline"
	"docuchat-go/internal/repository"
	"docuchat-go/pkg/kafka"
	"docuchat-go/pkg/log"
	"docuchat-go/pkg/storage"
	"docuchat-go/pkg/tasks"
)

// DocumentService 定义了文档上传、列举与重建索引的业务接口。
type DocumentService interface {
	// Upload 依次摄取一批 base64 编码的文件。任何一个文件失败都使
	// 整个调用失败（不做部分成功），错误标明出错的文件。
	Upload(ctx context.Context, files []model.UploadFileInput) error
	// List 返回所有已存储的原始文档，按文件名排序。
	List(ctx context.Context) ([]model.DocumentInfo, error)
	// Status 返回摄取台账中的全部文档记录。
	Status() ([]*model.Document, error)
	// DownloadURL 为某个文档生成限时下载链接。
	DownloadURL(ctx context.Context, fileName string) (string, error)
	// Reindex 把重建索引任务投递到队列，由后台消费者执行。
	Reindex(ctx context.Context, fileName string) error
	// Process 实现 kafka.TaskProcessor：从对象存储取回原始字节并重放摄取。
	Process(ctx context.Context, task tasks.ReindexTask) error
}

type documentService struct {
	processor *pipeline.Processor
	docRepo   repository.DocumentRepository
	bus       *notify.Bus
	minioCfg  config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	processor *pipeline.Processor,
	docRepo repository.DocumentRepository,
	bus *notify.Bus,
	minioCfg config.MinIOConfig,
) DocumentService {
	return &documentService{
		processor: processor,
		docRepo:   docRepo,
		bus:       bus,
		minioCfg:  minioCfg,
	}
}

// Upload 逐个文件顺序摄取：确定性分块 ID 的分配保持简单，
// 且同一时刻只有一个文档的分块和向量在内存中。
func (s *documentService) Upload(ctx context.Context, files []model.UploadFileInput) error {
	for _, file := range files {
		raw, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return fmt.Errorf("文件 '%s' 的内容不是合法的 base64: %w", file.FileName, err)
		}
		if err := s.processor.Ingest(ctx, file.FileName, raw); err != nil {
			return err
		}
		s.bus.Publish(notify.Event{Type: notify.EventTypeDocumentIndexed, Payload: file.FileName})
	}
	return nil
}

// List 列出对象存储中的全部原始文档。
func (s *documentService) List(ctx context.Context) ([]model.DocumentInfo, error) {
	names, err := storage.ListDocuments(ctx, s.minioCfg.BucketName)
	if err != nil {
		return nil, err
	}
	infos := make([]model.DocumentInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, model.DocumentInfo{
			Name: name,
			Path: "/uploads/" + name,
		})
	}
	return infos, nil
}

// Status 返回摄取台账。
func (s *documentService) Status() ([]*model.Document, error) {
	return s.docRepo.FindAll()
}

// DownloadURL 生成限时下载链接。
func (s *documentService) DownloadURL(ctx context.Context, fileName string) (string, error) {
	if _, err := s.docRepo.FindByFileName(fileName); err != nil {
		return "", fmt.Errorf("文档 '%s' 不存在: %w", fileName, err)
	}
	return storage.GetPresignedURL(ctx, s.minioCfg.BucketName, fileName, 15*time.Minute)
}

// Reindex 校验文档存在后投递重建索引任务。
func (s *documentService) Reindex(ctx context.Context, fileName string) error {
	if _, err := s.docRepo.FindByFileName(fileName); err != nil {
		return fmt.Errorf("文档 '%s' 不存在: %w", fileName, err)
	}
	return kafka.ProduceReindexTask(ctx, tasks.ReindexTask{FileName: fileName})
}

// Process 重放某个文档的摄取。摄取对同一文件名是幂等的，
// 重放会覆盖既有分块而不是追加。
func (s *documentService) Process(ctx context.Context, task tasks.ReindexTask) error {
	raw, err := storage.GetDocument(ctx, s.minioCfg.BucketName, task.FileName)
	if err != nil {
		return fmt.Errorf("读取文档 '%s' 的原始字节失败: %w", task.FileName, err)
	}
	if err := s.processor.Ingest(ctx, task.FileName, raw); err != nil {
		return err
	}
	log.Infof("[DocumentService] 重建索引完成: %s", task.FileName)
	s.bus.Publish(notify.Event{Type: notify.EventTypeDocumentIndexed, Payload: task.FileName})
	return nil
}
