// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docuchat-go/internal/config"
	"docuchat-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

// 单次批量调用里并发的 embedding 请求数上限。
const maxConcurrentRequests = 4

// ProviderError 表示对 embedding 服务的调用失败。
// 属于瞬时错误，调用方可以带退避重试，但客户端自身只做有界重试。
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding 服务 %s 调用失败: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client defines the interface for an embedding client.
type Client interface {
	// EmbedBatch 为每条输入文本生成一个向量，保持顺序。任何一条失败都
	// 使整批失败（不返回部分结果），错误会标注失败的输入序号：管道假设
	// 分块列表和向量列表 1:1 对齐，悄悄丢弃失败项会破坏这种对齐。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery 为检索查询生成向量，必须与 EmbedBatch 使用同一模型和维度。
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch 把每条文本作为独立工作单元并发请求，全部完成后按原顺序返回。
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRequests)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vector, err := c.embedWithRetry(gctx, text)
			if err != nil {
				return fmt.Errorf("第 %d 条输入向量化失败: %w", i, err)
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery 为单条查询文本生成向量。
func (c *openAICompatibleClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embedWithRetry(ctx, text)
}

// embedWithRetry 对瞬时失败做有界重试，超过上限后向上抛出 ProviderError。
func (c *openAICompatibleClient) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warnf("[EmbeddingClient] 第 %d 次重试 embedding 调用: %v", attempt, lastErr)
			select {
			case <-ctx.Done():
				return nil, &ProviderError{Op: "embed", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		vector, err := c.embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// embed calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("failed to marshal embedding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &ProviderError{Op: "embed", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("failed to decode embedding response: %w", err)}
	}
	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("received empty embedding from api")}
	}

	vector := embeddingResp.Data[0].Embedding
	if c.cfg.Dimensions > 0 && len(vector) != c.cfg.Dimensions {
		// 维度混用的存储视为损坏，在入口处就挡住
		return nil, &ProviderError{
			Op:  "embed",
			Err: fmt.Errorf("向量维度 %d 与配置的 %d 不一致", len(vector), c.cfg.Dimensions),
		}
	}
	return vector, nil
}
