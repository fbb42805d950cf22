// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"docuchat-go/internal/model"
	"docuchat-go/internal/repository"
	"docuchat-go/internal/vectorstore"
	"docuchat-go/pkg/embedding"
	"docuchat-go/pkg/llm"
	"docuchat-go/pkg/log"
)

// 生成服务返回空内容时的兜底回答。
const emptyAnswerFallback = "No response from assistant"

// ChatService 定义了检索增强问答的接口。
type ChatService interface {
	// Answer 对一条用户提问执行检索增强生成并返回回答文本。
	Answer(ctx context.Context, sessionID, query string) (string, error)
	// GetHistory 返回某个会话的历史问答。
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type chatService struct {
	embedder         embedding.Client
	store            vectorstore.Store
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	systemPrompt     string
	topK             int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	embedder embedding.Client,
	store vectorstore.Store,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	systemPrompt string,
	topK int,
) ChatService {
	return &chatService{
		embedder:         embedder,
		store:            store,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		systemPrompt:     systemPrompt,
		topK:             topK,
	}
}

// Answer 协调检索流程：向量化查询 → 相似度检索 → 组装上下文 → 生成。
// 检索不到任何结果时上下文为空，生成照常进行（优雅降级而不是报错）。
func (s *chatService) Answer(ctx context.Context, sessionID, query string) (string, error) {
	// 查询向量必须出自与分块向量相同的模型，跨模型向量不可比
	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("查询向量化失败: %w", err)
	}

	results, err := s.store.Query(ctx, queryVector, s.topK)
	if err != nil {
		return "", fmt.Errorf("向量检索失败: %w", err)
	}
	log.Infof("[ChatService] 检索到 %d 条相关分块, query: '%s'", len(results), query)

	// 按相似度降序拼接上下文段落
	contextSegments := make([]string, 0, len(results))
	for _, r := range results {
		contextSegments = append(contextSegments, r.Text)
	}

	answer, err := s.llmClient.Complete(ctx, s.systemPrompt, query, contextSegments)
	if err != nil {
		return "", fmt.Errorf("生成回答失败: %w", err)
	}
	if answer == "" {
		answer = emptyAnswerFallback
	}

	// 使用后台上下文保存历史：即使请求被取消，成功生成的回答也应入库。
	// 保存失败只记录日志，不影响已经生成的回答。
	if err := s.conversationRepo.AppendExchange(context.Background(), sessionID, query, answer); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败: %v", err)
	}
	return answer, nil
}

// GetHistory 返回某个会话的历史问答。
func (s *chatService) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.conversationRepo.GetHistory(ctx, sessionID)
}
