package langchain

import (
	"context"
	"fmt"
	"strings"

	"recipe-scaler/internal/core/ai/provider"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Generator 為 langchaingo 模型的最小介面，方便測試替換
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client 透過 langchaingo 呼叫 OpenAI 相容端點
type Client struct {
	llm   Generator
	model string
}

// NewClient 創建 langchaingo 客戶端
func NewClient(cfg provider.Config) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}
	return &Client{llm: llm, model: cfg.Model}, nil
}

// NewWithGenerator 使用既有模型建立客戶端
func NewWithGenerator(llm Generator, model string) *Client {
	return &Client{llm: llm, model: model}
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		msgType := schema.ChatMessageTypeHuman
		if msg.Role == provider.RoleSystem {
			msgType = schema.ChatMessageTypeSystem
		}
		messages = append(messages, llms.TextParts(msgType, msg.Content))
	}

	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return nil, provider.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return &provider.Response{
		Content: choice.Content,
		Usage: provider.Usage{
			PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
			CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
			TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		},
	}, nil
}

func intInfo(info map[string]any, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}

// GetModel 返回模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// Close langchaingo 客戶端沒有需要釋放的資源
func (c *Client) Close() error {
	return nil
}
