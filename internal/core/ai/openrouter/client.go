package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"recipe-scaler/internal/core/ai/provider"
	"recipe-scaler/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL OpenRouter 預設端點，任何 OpenAI 相容服務皆可替換
	DefaultBaseURL = "https://openrouter.ai/api/v1"
)

// Client OpenAI 相容 chat completions 客戶端
type Client struct {
	client *resty.Client
	model  string
}

// chatRequest 表示 API 請求
type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []provider.Message `json:"messages"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat *responseFormat    `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse 響應結構
type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message provider.Message `json:"message"`
	} `json:"choices"`
	Usage provider.Usage `json:"usage"`
}

// apiError 表示 API 錯誤
type apiError struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// NewClient 創建新的客戶端，timeout 為單次 HTTP 往返上限
func NewClient(cfg provider.Config, timeout time.Duration) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("HTTP-Referer", "https://github.com/recipe-scaler").
		SetHeader("X-Title", "Recipe Scaler")

	return &Client{
		client: client,
		model:  cfg.Model,
	}
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	common.LogDebug("Sending request to OpenRouter",
		zap.String("model", c.model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("OpenRouter API returned %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return nil, fmt.Errorf("OpenRouter API returned %d: %s", resp.StatusCode(), common.Truncate(resp.String(), 300))
	}

	var result chatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, provider.ErrEmptyResponse
	}

	return &provider.Response{
		Content: result.Choices[0].Message.Content,
		Usage:   result.Usage,
	}, nil
}

// GetModel 返回模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}
