package service

import (
	"context"
	"fmt"
	"time"

	"recipe-scaler/internal/core/ai/gemini"
	"recipe-scaler/internal/core/ai/langchain"
	"recipe-scaler/internal/core/ai/openrouter"
	"recipe-scaler/internal/core/ai/provider"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// NewProvider 依設定建立推論後端
func NewProvider(ctx context.Context, cfg config.OracleConfig) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle api key is required for provider %q", cfg.Provider)
	}

	pc := provider.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	}

	common.LogInfo("初始化推論後端",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("key", config.MaskAPIKey(cfg.APIKey)),
	)

	switch cfg.Provider {
	case config.ProviderOpenRouter, "":
		// HTTP 逾時略長於單次查詢的 context 逾時
		return openrouter.NewClient(pc, cfg.Timeout+5*time.Second), nil
	case config.ProviderLangChain:
		client, err := langchain.NewClient(pc)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, pc)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
