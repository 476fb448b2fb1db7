package container

import (
	"context"
	"errors"
	"fmt"

	"recipe-scaler/internal/core/ai/cache"
	"recipe-scaler/internal/core/ai/service"
	"recipe-scaler/internal/core/pipeline"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/core/shopping"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/infrastructure/storage"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// Container 組裝好的服務，cmd/api 與 cmd/scaler 共用
type Container struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Cache    cache.Store
	Oracle   *service.Service
	Plans    *storage.PlanStore
	Resolver *shopping.Resolver
	Pipeline *pipeline.Pipeline

	opts    options
	closers []func() error
}

// Option 調整 Build 建立的服務
type Option func(*options)

type options struct {
	withoutOracle bool
}

// WithoutOracle 不建立推論服務與快取，Pipeline 只能解析已保存的清單
func WithoutOracle() Option {
	return func(o *options) {
		o.withoutOracle = true
	}
}

// Build 依設定建立所有服務，失敗時關閉已建立的資源
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}

	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.Config

	if !c.opts.withoutOracle {
		if err := c.buildOracle(ctx); err != nil {
			return err
		}
	}

	plans, err := storage.Open(cfg.Storage.HistoryDSN, cfg.App.Debug)
	if err != nil {
		return fmt.Errorf("failed to open plan history: %w", err)
	}
	c.Plans = plans
	c.closers = append(c.closers, plans.Close)

	components := pipeline.Components{
		Fetcher: recipe.NewFetcher(cfg.Source, cfg.Retail.UserAgent),
		Store:   plans,
	}
	model := ""
	if c.Oracle != nil {
		components.Normalizer = recipe.NewNormalizer(c.Oracle, c.Metrics)
		components.Scaler = recipe.NewScaler(c.Oracle, cfg.Scaling, c.Metrics)
		model = c.Oracle.Model()
	}
	if cfg.Retail.Enabled {
		c.Resolver = shopping.NewResolver(shopping.NewHTTPBrowser(cfg.Retail), cfg.Retail, c.Metrics)
		components.Resolver = c.Resolver
	}
	c.Pipeline = pipeline.New(components, cfg.Retry)

	common.LogInfo("服務初始化完成",
		zap.String("provider", cfg.Oracle.Provider),
		zap.String("model", model),
		zap.Bool("oracle_enabled", c.Oracle != nil),
		zap.String("key_hint", config.MaskAPIKey(cfg.Oracle.APIKey)),
		zap.Bool("cache_enabled", c.Cache != nil),
		zap.String("scaling_mode", cfg.Scaling.Mode),
		zap.Bool("retail_enabled", cfg.Retail.Enabled),
	)
	return nil
}

// buildOracle 建立快取、推論後端與 Service
func (c *Container) buildOracle(ctx context.Context) error {
	cfg := c.Config

	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if store != nil {
		c.Cache = store
	}

	p, err := service.NewProvider(ctx, cfg.Oracle)
	if err != nil {
		if c.Cache != nil {
			_ = c.Cache.Close()
		}
		return fmt.Errorf("failed to initialize oracle provider: %w", err)
	}
	// Service 擁有快取，關閉時一併關閉
	c.Oracle = service.NewService(p, c.Cache, c.Metrics, cfg.Oracle)
	c.closers = append(c.closers, c.Oracle.Close)
	return nil
}

// CacheStats 程序內快取的統計，其他後端返回 nil
func (c *Container) CacheStats() interface{} {
	if m, ok := c.Cache.(*cache.Manager); ok {
		return m.GetStats()
	}
	return nil
}

// Close 依建立的相反順序關閉資源
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
