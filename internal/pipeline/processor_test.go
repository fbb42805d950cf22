package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docuchat-go/internal/chunker"
	"docuchat-go/internal/model"
	"docuchat-go/internal/vectorstore/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 3

// fakeExtractor 直接返回预置文本，failFiles 中的文件返回提取错误。
type fakeExtractor struct {
	texts     map[string]string
	failFiles map[string]bool
}

func (f *fakeExtractor) ExtractText(ctx context.Context, raw []byte, fileName string) (string, error) {
	if f.failFiles[fileName] {
		return "", errors.New("corrupt file")
	}
	return f.texts[fileName], nil
}

// fakeEmbedder 从文本长度派生确定性向量，failOn 匹配的分块让整批失败。
type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, fmt.Errorf("第 %d 条输入向量化失败: provider unavailable", i)
		}
		vectors[i] = f.vector(text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text) % 97), float32(len(text) / 97), 1}
}

// fakeBlobs 把字节保存在内存里，fail 为 true 时写入失败。
type fakeBlobs struct {
	objects map[string][]byte
	fail    bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(ctx context.Context, fileName string, raw []byte) error {
	if f.fail {
		return errors.New("blob store unavailable")
	}
	f.objects[fileName] = raw
	return nil
}

// fakeDocRepo 记录台账状态变化。
type fakeDocRepo struct {
	status map[string]int
	chunks map[string]int
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{status: make(map[string]int), chunks: make(map[string]int)}
}

func (f *fakeDocRepo) UpsertByFileName(doc *model.Document) error {
	f.status[doc.FileName] = doc.Status
	return nil
}

func (f *fakeDocRepo) MarkIndexed(fileName string, chunkCount int) error {
	f.status[fileName] = model.DocumentStatusIndexed
	f.chunks[fileName] = chunkCount
	return nil
}

func (f *fakeDocRepo) MarkFailed(fileName string) error {
	f.status[fileName] = model.DocumentStatusFailed
	return nil
}

func (f *fakeDocRepo) FindByFileName(fileName string) (*model.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDocRepo) FindAll() ([]*model.Document, error) {
	return nil, nil
}

func wordText(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

type fixture struct {
	processor *Processor
	store     *memory.Store
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	blobs     *fakeBlobs
	docRepo   *fakeDocRepo
}

func newFixture(t *testing.T, chunkSize int) *fixture {
	t.Helper()
	store, err := memory.New(testDims)
	require.NoError(t, err)
	ck, err := chunker.New(chunkSize)
	require.NoError(t, err)

	extractor := &fakeExtractor{texts: map[string]string{}, failFiles: map[string]bool{}}
	embedder := &fakeEmbedder{}
	blobs := newFakeBlobs()
	docRepo := newFakeDocRepo()

	return &fixture{
		processor: NewProcessor(extractor, ck, embedder, store, blobs, docRepo),
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		blobs:     blobs,
		docRepo:   docRepo,
	}
}

func TestIngestEndToEnd(t *testing.T) {
	fx := newFixture(t, 200)
	ctx := context.Background()

	// 450 个词，size=200：期望 doc_chunk_0..2 共三条记录
	fx.extractor.texts["doc"] = wordText(450)
	require.NoError(t, fx.processor.Ingest(ctx, "doc", []byte("%PDF-")))

	size, err := fx.store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	// 分块 1 的内容应能按相似度检索回来
	results, err := fx.store.Query(ctx, fx.embedder.vector(strings.Join(strings.Fields(wordText(400))[200:400], " ")), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].FileName)
	assert.Equal(t, 1, results[0].ChunkIndex)

	assert.Equal(t, []byte("%PDF-"), fx.blobs.objects["doc"])
	assert.Equal(t, model.DocumentStatusIndexed, fx.docRepo.status["doc"])
	assert.Equal(t, 3, fx.docRepo.chunks["doc"])
}

func TestIngestIsIdempotent(t *testing.T) {
	fx := newFixture(t, 200)
	ctx := context.Background()

	fx.extractor.texts["a.pdf"] = wordText(450)
	require.NoError(t, fx.processor.Ingest(ctx, "a.pdf", []byte("raw")))
	require.NoError(t, fx.processor.Ingest(ctx, "a.pdf", []byte("raw")))

	size, err := fx.store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size, "重复摄取同名同内容文件不应增长存储")
}

func TestIngestShrinkDeletesStaleChunks(t *testing.T) {
	fx := newFixture(t, 200)
	ctx := context.Background()

	fx.extractor.texts["a.pdf"] = wordText(450)
	require.NoError(t, fx.processor.Ingest(ctx, "a.pdf", []byte("v1")))

	// 新版本只有 250 个词 → 2 个分块，序号 2 的旧分块应被清理
	fx.extractor.texts["a.pdf"] = wordText(250)
	require.NoError(t, fx.processor.Ingest(ctx, "a.pdf", []byte("v2")))

	size, err := fx.store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestIngestEmbedFailureLeavesStoreUntouched(t *testing.T) {
	fx := newFixture(t, 200)
	ctx := context.Background()

	fx.extractor.texts["a.pdf"] = wordText(450)
	fx.embedder.failOn = "word300" // 第二个分块里的词

	err := fx.processor.Ingest(ctx, "a.pdf", []byte("raw"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "a.pdf", stageErr.FileName)
	assert.Equal(t, StageEmbed, stageErr.Stage)

	size, sizeErr := fx.store.Size(ctx)
	require.NoError(t, sizeErr)
	assert.Equal(t, 0, size, "向量化失败不得产生部分写入")
	assert.Empty(t, fx.blobs.objects)
	assert.Equal(t, model.DocumentStatusFailed, fx.docRepo.status["a.pdf"])
}

func TestIngestExtractionFailure(t *testing.T) {
	fx := newFixture(t, 200)

	fx.extractor.failFiles["bad.pdf"] = true
	err := fx.processor.Ingest(context.Background(), "bad.pdf", []byte("raw"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExtract, stageErr.Stage)
	assert.Equal(t, "bad.pdf", stageErr.FileName)
}

func TestIngestEmptyTextFails(t *testing.T) {
	fx := newFixture(t, 200)

	fx.extractor.texts["empty.pdf"] = "   "
	err := fx.processor.Ingest(context.Background(), "empty.pdf", []byte("raw"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	// 全空白文本在分块阶段产出 0 个分块
	assert.Equal(t, StageChunk, stageErr.Stage)
}

func TestIngestEmptyBytesFails(t *testing.T) {
	fx := newFixture(t, 200)

	err := fx.processor.Ingest(context.Background(), "empty.pdf", nil)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExtract, stageErr.Stage)
}

func TestIngestBlobFailureSurfacesPersistStage(t *testing.T) {
	fx := newFixture(t, 200)

	fx.extractor.texts["a.pdf"] = wordText(10)
	fx.blobs.fail = true

	err := fx.processor.Ingest(context.Background(), "a.pdf", []byte("raw"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)

	// 向量已写入：摄取可安全重放，重放会覆盖同样的 ID
	size, sizeErr := fx.store.Size(context.Background())
	require.NoError(t, sizeErr)
	assert.Equal(t, 1, size)
}
