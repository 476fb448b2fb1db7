package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/ai/cache"
	"recipe-scaler/internal/core/ai/provider"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service 推論服務：限流、快取、逾時與 JSON 擷取
type Service struct {
	provider provider.Provider
	cache    cache.Store
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	config   config.OracleConfig
}

// NewService 創建推論服務，store 與 m 可為 nil
func NewService(p provider.Provider, store cache.Store, m *metrics.Metrics, cfg config.OracleConfig) *Service {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Service{
		provider: p,
		cache:    store,
		limiter:  limiter,
		metrics:  m,
		config:   cfg,
	}
}

// Model 返回目前使用的模型
func (s *Service) Model() string {
	return s.provider.GetModel()
}

// Ask 送出查詢並返回回覆中的 JSON 物件
func (s *Service) Ask(ctx context.Context, q ai.Query) (json.RawMessage, error) {
	stage := q.Stage.String()
	key := cache.Key(s.provider.GetModel(), stage, q.System+"\n"+q.Prompt)

	if s.cache != nil {
		if raw, ok := s.lookup(ctx, key, q); ok {
			return raw, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, common.OracleUnavailable(stage, q.Input, err)
		}
	}

	content, err := s.generate(ctx, q)
	if err != nil {
		return nil, err
	}

	raw, err := common.ExtractJSONObject(content)
	if err != nil {
		s.metrics.ObserveOracle(stage, "malformed", 0)
		common.LogWarn("推論回覆不是 JSON 物件",
			zap.String("stage", stage),
			zap.String("input", q.Input),
			zap.String("content", common.Truncate(content, 200)),
		)
		return nil, common.MalformedResponse(stage, q.Input, "reply is not a JSON object", err)
	}

	if s.cache != nil {
		s.store(ctx, key, q, raw)
	}

	return json.RawMessage(raw), nil
}

// lookup 讀取快取，未通過驗證的舊回覆視為未命中
func (s *Service) lookup(ctx context.Context, key string, q ai.Query) (json.RawMessage, bool) {
	stage := q.Stage.String()

	val, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if q.Validate == nil || q.Validate(json.RawMessage(val)) == nil {
			s.metrics.CacheLookup(true)
			common.LogCacheHit(stage)
			return json.RawMessage(val), true
		}
		common.LogWarn("快取回覆未通過驗證，重新查詢", zap.String("stage", stage), zap.String("input", q.Input))
	case !errors.Is(err, cache.ErrCacheMiss):
		common.LogWarn("快取讀取失敗", zap.String("stage", stage), zap.Error(err))
	}

	s.metrics.CacheLookup(false)
	common.LogCacheMiss(stage)
	return nil, false
}

// store 只保存通過驗證的回覆
func (s *Service) store(ctx context.Context, key string, q ai.Query, raw []byte) {
	stage := q.Stage.String()
	if q.Validate != nil {
		if err := q.Validate(raw); err != nil {
			common.LogDebug("回覆未通過驗證，不寫入快取", zap.String("stage", stage), zap.Error(err))
			return
		}
	}
	if err := s.cache.Set(ctx, key, string(raw)); err != nil {
		common.LogWarn("快取寫入失敗", zap.String("stage", stage), zap.Error(err))
	}
}

func (s *Service) generate(ctx context.Context, q ai.Query) (string, error) {
	stage := q.Stage.String()

	callCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	var messages []provider.Message
	if q.System != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: q.System})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: q.Prompt})

	start := time.Now()
	resp, err := s.provider.Generate(callCtx, &provider.Request{
		Messages:    messages,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		JSONMode:    true,
	})
	duration := time.Since(start)
	common.LogOracleCall(stage, q.Input, duration, err)

	if err != nil {
		if errors.Is(err, provider.ErrEmptyResponse) {
			s.metrics.ObserveOracle(stage, "malformed", duration)
			return "", common.MalformedResponse(stage, q.Input, "empty reply", err)
		}
		s.metrics.ObserveOracle(stage, "unavailable", duration)
		return "", common.OracleUnavailable(stage, q.Input, err)
	}

	s.metrics.ObserveOracle(stage, "ok", duration)
	common.LogDebug("推論使用量",
		zap.String("stage", stage),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Content, nil
}

// Close 釋放提供者與快取
func (s *Service) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.provider.Close())
	return errors.Join(errs...)
}
