package service

import (
	"context"
	"errors"
	"testing"

	"docuchat-go/internal/model"
	"docuchat-go/internal/vectorstore"
	"docuchat-go/internal/vectorstore/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueryEmbedder 按预置映射返回查询向量。
type fakeQueryEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeQueryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

// fakeLLM 记录收到的 prompt 并返回固定回答。
type fakeLLM struct {
	answer      string
	err         error
	gotSystem   string
	gotUser     string
	gotSegments []string
	calledTimes int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userMessage string, contextSegments []string) (string, error) {
	f.calledTimes++
	f.gotSystem = systemPrompt
	f.gotUser = userMessage
	f.gotSegments = contextSegments
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeConversationRepo 把历史保存在内存里。
type fakeConversationRepo struct {
	history map[string][]model.ChatMessage
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{history: make(map[string][]model.ChatMessage)}
}

func (f *fakeConversationRepo) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return f.history[sessionID], nil
}

func (f *fakeConversationRepo) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	f.history[sessionID] = append(f.history[sessionID],
		model.ChatMessage{Role: "user", Content: question},
		model.ChatMessage{Role: "assistant", Content: answer},
	)
	return nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.New(2)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Record{
		{
			ID:       vectorstore.RecordID("cats.pdf", 0),
			FileName: "cats.pdf", ChunkIndex: 0,
			Text:   "Cats purr when they are content and knead with their paws.",
			Vector: []float32{1, 0},
		},
		{
			ID:       vectorstore.RecordID("finance.pdf", 0),
			FileName: "finance.pdf", ChunkIndex: 0,
			Text:   "Quarterly revenue grew by twelve percent year over year.",
			Vector: []float32{0, 1},
		},
	}))
	return store
}

func TestAnswerRetrievalOrdering(t *testing.T) {
	store := seedStore(t)
	embedder := &fakeQueryEmbedder{vectors: map[string][]float32{
		"tell me about cats": {0.95, 0.05},
	}}
	llmClient := &fakeLLM{answer: "Cats purr a lot."}
	convRepo := newFakeConversationRepo()

	svc := NewChatService(embedder, store, llmClient, convRepo, "You are a helpful assistant.", 2)

	answer, err := svc.Answer(context.Background(), "s1", "tell me about cats")
	require.NoError(t, err)
	assert.Equal(t, "Cats purr a lot.", answer)

	// 上下文段落按相似度降序：猫的分块应排在财报分块之前
	require.Len(t, llmClient.gotSegments, 2)
	assert.Contains(t, llmClient.gotSegments[0], "Cats purr")
	assert.Contains(t, llmClient.gotSegments[1], "Quarterly revenue")
	assert.Equal(t, "You are a helpful assistant.", llmClient.gotSystem)
	assert.Equal(t, "tell me about cats", llmClient.gotUser)
}

func TestAnswerEmptyStoreDegradesGracefully(t *testing.T) {
	store, err := memory.New(2)
	require.NoError(t, err)
	embedder := &fakeQueryEmbedder{vectors: map[string][]float32{"hello": {1, 0}}}
	llmClient := &fakeLLM{answer: "Hello! How can I help you?"}

	svc := NewChatService(embedder, store, llmClient, newFakeConversationRepo(), "You are a helpful assistant.", 2)

	answer, err := svc.Answer(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, 1, llmClient.calledTimes, "空存储时生成仍应进行")
	assert.Empty(t, llmClient.gotSegments)
}

func TestAnswerTopKLimitsContext(t *testing.T) {
	store := seedStore(t)
	embedder := &fakeQueryEmbedder{vectors: map[string][]float32{"cats": {1, 0}}}
	llmClient := &fakeLLM{answer: "ok"}

	svc := NewChatService(embedder, store, llmClient, newFakeConversationRepo(), "sys", 1)

	_, err := svc.Answer(context.Background(), "s1", "cats")
	require.NoError(t, err)
	assert.Len(t, llmClient.gotSegments, 1)
}

func TestAnswerProviderFailurePropagates(t *testing.T) {
	store := seedStore(t)
	embedder := &fakeQueryEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	llmClient := &fakeLLM{err: errors.New("upstream 503")}
	convRepo := newFakeConversationRepo()

	svc := NewChatService(embedder, store, llmClient, convRepo, "sys", 2)

	_, err := svc.Answer(context.Background(), "s1", "q")
	require.Error(t, err)
	assert.Empty(t, convRepo.history["s1"], "失败的问答不应写入历史")
}

func TestAnswerEmbedFailurePropagates(t *testing.T) {
	store := seedStore(t)
	embedder := &fakeQueryEmbedder{err: errors.New("provider down")}
	llmClient := &fakeLLM{answer: "unused"}

	svc := NewChatService(embedder, store, llmClient, newFakeConversationRepo(), "sys", 2)

	_, err := svc.Answer(context.Background(), "s1", "q")
	require.Error(t, err)
	assert.Zero(t, llmClient.calledTimes)
}

func TestAnswerSavesHistory(t *testing.T) {
	store := seedStore(t)
	embedder := &fakeQueryEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	llmClient := &fakeLLM{answer: "a"}
	convRepo := newFakeConversationRepo()

	svc := NewChatService(embedder, store, llmClient, convRepo, "sys", 2)

	_, err := svc.Answer(context.Background(), "s1", "q")
	require.NoError(t, err)

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}
