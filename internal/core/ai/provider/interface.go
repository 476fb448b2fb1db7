package provider

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse 提供者有回覆但沒有內容
var ErrEmptyResponse = errors.New("empty response from provider")

// 對話角色
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message 表示與 AI 模型的對話消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 表示發送到 AI 提供者的請求
type Request struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"-"` // 要求回覆單一 JSON 物件
}

// Usage 表示 token 使用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response 表示從 AI 提供者收到的響應
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Provider 定義 AI 提供者介面
type Provider interface {
	// Generate 生成 AI 響應
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GetModel 獲取當前使用的模型名稱
	GetModel() string

	// Close 關閉提供者連接
	Close() error
}

// Config 定義 AI 提供者配置
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SplitMessages 拆出系統指示與其餘對話內容，給不支援多角色的後端使用
func SplitMessages(messages []Message) (system string, user string) {
	var sys, rest []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m.Content)
	}
	return strings.Join(sys, "\n\n"), strings.Join(rest, "\n\n")
}
