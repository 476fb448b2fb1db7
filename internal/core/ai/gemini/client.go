package gemini

import (
	"context"
	"fmt"
	"strings"

	"recipe-scaler/internal/core/ai/provider"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel 預設 Gemini 模型
const DefaultModel = "gemini-1.5-flash"

// Client Gemini API 客戶端
type Client struct {
	client    *genai.Client
	modelName string
}

// NewClient 建立 Gemini 客戶端
func NewClient(ctx context.Context, cfg provider.Config) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, modelName: model}, nil
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	system, prompt := provider.SplitMessages(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	content := responseText(resp)
	if strings.TrimSpace(content) == "" {
		return nil, provider.ErrEmptyResponse
	}

	out := &provider.Response{Content: content}
	if resp.UsageMetadata != nil {
		out.Usage = provider.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// responseText 串接第一個候選的所有文字片段
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// GetModel 返回模型名稱
func (c *Client) GetModel() string {
	return c.modelName
}

// Close 關閉客戶端
func (c *Client) Close() error {
	return c.client.Close()
}
