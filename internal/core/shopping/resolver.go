package shopping

import (
	"context"
	"errors"
	"sync"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 解析結果，用於指標標籤
const (
	outcomeFound    = "found"
	outcomeNotFound = "not_found"
	outcomeTimeout  = "timeout"
	outcomeFailed   = "failed"
)

// ProgressFunc 每完成一個食材呼叫一次，可能由多個 goroutine 同時呼叫
type ProgressFunc func(done, total int, match recipe.ProductMatch)

// Resolver 將食材對應到零售商品
type Resolver struct {
	browser Browser
	workers int
	delay   time.Duration
	metrics *metrics.Metrics
}

// NewResolver 創建 Resolver
func NewResolver(browser Browser, cfg config.RetailConfig, m *metrics.Metrics) *Resolver {
	return &Resolver{
		browser: browser,
		workers: cfg.Workers,
		delay:   cfg.RequestDelay,
		metrics: m,
	}
}

// ResolveAll 開啟一個 Session 解析所有食材，返回與輸入同順序的結果。
// 單一食材失敗只會變成占位結果；只有 context 取消時才返回錯誤，此時未處理的項目為 "Search failed"。
func (r *Resolver) ResolveAll(ctx context.Context, ingredients []recipe.Ingredient, progress ProgressFunc) ([]recipe.ProductMatch, error) {
	results := make([]recipe.ProductMatch, len(ingredients))
	for i, ing := range ingredients {
		results[i] = failedMatch(ing)
	}
	if len(ingredients) == 0 {
		return results, nil
	}

	session, err := r.browser.Open(ctx)
	if err != nil {
		common.LogError("零售搜尋連線開啟失敗", zap.Error(err))
		r.metrics.Resolution(outcomeFailed)
		return results, nil
	}
	defer func() {
		if err := session.Close(); err != nil {
			common.LogWarn("零售搜尋連線關閉失敗", zap.Error(err))
		}
	}()

	// 每次搜尋之間的間隔由所有 worker 共用
	var limiter *rate.Limiter
	if r.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.delay), 1)
	}

	queue := newWorkQueue(len(ingredients), r.workers)
	var wg sync.WaitGroup
	for w := 0; w < queue.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue.jobs {
				if ctx.Err() != nil {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}
				results[i] = r.resolveOne(ctx, session, ingredients[i])
				done := queue.incrementProcessed()
				if progress != nil {
					progress(done, queue.total, results[i])
				}
			}
		}()
	}
	wg.Wait()

	status := queue.status()
	common.LogInfo("商品解析完成",
		zap.Int("processed", status.ProcessedCount),
		zap.Int("total", status.Total),
		zap.Int("workers", status.Workers),
	)

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Resolver) resolveOne(ctx context.Context, session Session, ing recipe.Ingredient) recipe.ProductMatch {
	query := BuildQuery(ing)
	listings, err := session.Search(ctx, query)
	if err != nil {
		outcome := outcomeFailed
		if errors.Is(err, common.ErrResolutionTimeout) {
			outcome = outcomeTimeout
		}
		r.metrics.Resolution(outcome)
		common.LogWarn("商品搜尋失敗",
			zap.String("stage", ai.StageResolve.String()),
			zap.String("ingredient", ing.Name),
			zap.String("query", query),
			zap.Error(err),
		)
		return failedMatch(ing)
	}

	listing, ok := selectListing(listings, ing)
	if !ok {
		r.metrics.Resolution(outcomeNotFound)
		common.LogInfo("沒有符合的商品",
			zap.String("ingredient", ing.Name),
			zap.String("query", query),
			zap.Int("listings", len(listings)),
		)
		return recipe.ProductMatch{
			Ingredient: ing,
			Product: recipe.Product{
				Name:           recipe.NameNotFound,
				URL:            recipe.URLNotFound,
				Price:          recipe.PriceNotFound,
				QuantityNeeded: ing.Quantity(),
			},
		}
	}

	r.metrics.Resolution(outcomeFound)
	common.LogDebug("找到商品",
		zap.String("ingredient", ing.Name),
		zap.String("product", listing.Name),
		zap.String("price", listing.Price),
	)
	return recipe.ProductMatch{
		Ingredient: ing,
		Product: recipe.Product{
			Name:           orSentinel(listing.Name, recipe.NameNotFound),
			URL:            orSentinel(listing.URL, recipe.URLNotFound),
			Price:          orSentinel(listing.Price, recipe.PriceNotFound),
			QuantityNeeded: ing.Quantity(),
		},
	}
}

// selectListing 取第一個通過過濾的商品
func selectListing(listings []Listing, ing recipe.Ingredient) (Listing, bool) {
	for _, l := range listings {
		if IsValidProduct(l.Name, ing) {
			return l, true
		}
	}
	return Listing{}, false
}

func failedMatch(ing recipe.Ingredient) recipe.ProductMatch {
	return recipe.ProductMatch{
		Ingredient: ing,
		Product: recipe.Product{
			Name:           recipe.SearchFailed,
			URL:            recipe.URLNotFound,
			Price:          recipe.PriceNotFound,
			QuantityNeeded: ing.Quantity(),
		},
	}
}

func orSentinel(v, sentinel string) string {
	if v == "" {
		return sentinel
	}
	return v
}
