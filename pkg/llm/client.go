// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"docuchat-go/internal/config"
)

// ProviderError 表示对生成服务的调用失败，属于瞬时错误。
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("生成服务 %s 调用失败: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以结构化 prompt 调用聊天补全：系统指令、用户问题，
	// 以及作为独立 system 段落注入的检索上下文。
	Complete(ctx context.Context, systemPrompt, userMessage string, contextSegments []string) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 调用 OpenAI 兼容的 /chat/completions 接口并返回首条回答。
// 上下文为空时不省略 context 段落：生成在无依据的情况下照常进行。
func (c *openAICompatibleClient) Complete(ctx context.Context, systemPrompt, userMessage string, contextSegments []string) (string, error) {
	contextText := strings.Join(contextSegments, "\n\n")
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
		{Role: "system", Content: "Context:\n" + contextText},
	}

	reqBytes, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return "", &ProviderError{Op: "complete", Err: fmt.Errorf("failed to marshal chat request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", &ProviderError{Op: "complete", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Op: "complete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Op: "complete", Err: fmt.Errorf("chat api returned non-200 status: %s", resp.Status)}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &ProviderError{Op: "complete", Err: fmt.Errorf("failed to decode chat response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
