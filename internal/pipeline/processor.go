// Package pipeline 定义了文档摄取的核心流程：
// 提取文本 → 分块 → 向量化 → 写入向量存储 → 持久化原始字节。
package pipeline

import (
	"context"
	"errors"
	"unicode/utf8"

	"docuchat-go/internal/chunker"
	"docuchat-go/internal/model"
	"docuchat-go/internal/repository"
	"docuchat-go/internal/vectorstore"
	"docuchat-go/pkg/embedding"
	"docuchat-go/pkg/log"
	"docuchat-go/pkg/tika"
)

// BlobStore 是原始文档字节的存放处，与向量存储相互独立。
// 两边没有事务关联：任何一边缺失都可以通过重放摄取补齐。
type BlobStore interface {
	Put(ctx context.Context, fileName string, raw []byte) error
}

// Processor 封装了单个文档摄取的所有依赖和逻辑。
// 对同一文件名摄取是幂等的：确定性分块 ID 使重复摄取覆盖而不是追加。
type Processor struct {
	extractor tika.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Client
	store     vectorstore.Store
	blobs     BlobStore
	docRepo   repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor tika.Extractor,
	ck *chunker.Chunker,
	embedder embedding.Client,
	store vectorstore.Store,
	blobs BlobStore,
	docRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		extractor: extractor,
		chunker:   ck,
		embedder:  embedder,
		store:     store,
		blobs:     blobs,
		docRepo:   docRepo,
	}
}

// Ingest 执行单个文档的完整摄取。任何阶段失败都中止该文档并返回
// 标注了文件名与阶段的 StageError；失败时向量存储对该文档不发生
// 部分变更，调用方可整体重试。
func (p *Processor) Ingest(ctx context.Context, fileName string, raw []byte) error {
	log.Infof("[Processor] 开始摄取文档: %s, 大小: %d 字节", fileName, len(raw))

	if len(raw) == 0 {
		return &StageError{FileName: fileName, Stage: StageExtract, Err: errors.New("文件内容为空")}
	}

	// 台账先落一行 indexing 状态，写失败不阻塞摄取
	if err := p.docRepo.UpsertByFileName(&model.Document{
		FileName:  fileName,
		TotalSize: int64(len(raw)),
		Status:    model.DocumentStatusIndexing,
	}); err != nil {
		log.Warnf("[Processor] 写入文档台账失败: %s, err: %v", fileName, err)
	}

	// 1. 提取文本
	text, err := p.extractor.ExtractText(ctx, raw, fileName)
	if err != nil {
		return p.fail(fileName, StageExtract, err)
	}
	if text == "" {
		return p.fail(fileName, StageExtract, errors.New("提取的文本内容为空"))
	}
	log.Infof("[Processor] 文本提取成功: %s, 长度: %d 字符", fileName, utf8.RuneCountInString(text))

	// 2. 分块
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return p.fail(fileName, StageChunk, errors.New("未生成任何文本分块"))
	}
	log.Infof("[Processor] 文本分块完成: %s, 共 %d 个分块", fileName, len(chunks))

	// 3. 向量化：并发发起、整批汇合，失败则整批中止，不做部分写入
	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return p.fail(fileName, StageEmbed, err)
	}
	if len(vectors) != len(chunks) {
		return p.fail(fileName, StageEmbed,
			errors.New("向量数与分块数不一致"))
	}

	// 4. 构建记录并整批 upsert，确定性 ID 覆盖旧版本的同序号分块
	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:         vectorstore.RecordID(fileName, i),
			FileName:   fileName,
			ChunkIndex: i,
			Text:       chunk,
			Vector:     vectors[i],
		}
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		return p.fail(fileName, StageStore, err)
	}

	// 上一版本分块更多时会留下序号更大的孤儿记录，upsert 成功后清理。
	// 先写后删保证 upsert 失败时旧版本数据完好。
	if err := p.store.DeleteStale(ctx, fileName, len(chunks)); err != nil {
		log.Warnf("[Processor] 清理过期分块失败: %s, err: %v", fileName, err)
	}

	// 5. 持久化原始字节，供列表/下载和重建索引使用
	if err := p.blobs.Put(ctx, fileName, raw); err != nil {
		return p.fail(fileName, StagePersist, err)
	}

	if err := p.docRepo.MarkIndexed(fileName, len(chunks)); err != nil {
		log.Warnf("[Processor] 更新文档台账失败: %s, err: %v", fileName, err)
	}

	if size, err := p.store.Size(ctx); err == nil {
		log.Infof("[Processor] 文档摄取完成: %s, 分块数: %d, 向量存储总量: %d", fileName, len(chunks), size)
	} else {
		log.Infof("[Processor] 文档摄取完成: %s, 分块数: %d", fileName, len(chunks))
	}
	return nil
}

// fail 记录台账失败状态并返回阶段错误。
func (p *Processor) fail(fileName, stage string, cause error) error {
	if err := p.docRepo.MarkFailed(fileName); err != nil {
		log.Warnf("[Processor] 标记文档失败状态出错: %s, err: %v", fileName, err)
	}
	return &StageError{FileName: fileName, Stage: stage, Err: cause}
}
