package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/core/shopping"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/storage"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// TextSource 直接輸入食譜文字時的來源識別
const TextSource = "text"

// SourceFetcher 取得食譜網頁文字
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// RecipeNormalizer 解析食譜文字
type RecipeNormalizer interface {
	Normalize(ctx context.Context, source, text string) (*recipe.RecipeAnalysis, []*common.ValidationError, error)
}

// RecipeScaler 縮放食譜
type RecipeScaler interface {
	Scale(ctx context.Context, analysis *recipe.RecipeAnalysis, targetMeals int) (*recipe.ScaledRecipe, []*common.ValidationError, error)
}

// ProductResolver 將食材對應到零售商品
type ProductResolver interface {
	ResolveAll(ctx context.Context, ingredients []recipe.Ingredient, progress shopping.ProgressFunc) ([]recipe.ProductMatch, error)
}

// PlanRecorder 保存規劃歷史
type PlanRecorder interface {
	Create(ctx context.Context, plan *storage.PlanModel) error
}

// Components 管線使用的元件，Fetcher、Resolver 與 Store 可為 nil
type Components struct {
	Fetcher    SourceFetcher
	Normalizer RecipeNormalizer
	Scaler     RecipeScaler
	Resolver   ProductResolver
	Store      PlanRecorder
}

// errOracleDisabled 未建立推論服務時的解析與縮放錯誤
var errOracleDisabled = errors.New("inference oracle is not configured")

// Pipeline 串接解析、縮放、商品解析與保存
type Pipeline struct {
	fetcher    SourceFetcher
	normalizer RecipeNormalizer
	scaler     RecipeScaler
	resolver   ProductResolver
	store      PlanRecorder
	retry      config.RetryConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

// New 創建 Pipeline
func New(c Components, retry config.RetryConfig) *Pipeline {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &Pipeline{
		fetcher:    c.Fetcher,
		normalizer: c.Normalizer,
		scaler:     c.Scaler,
		resolver:   c.Resolver,
		store:      c.Store,
		retry:      retry,
		sleep:      sleepContext,
	}
}

// Request 一次完整規劃的輸入
type Request struct {
	Recipe      string // 食譜文字或網址
	TargetMeals int
	Resolve     bool
	Progress    shopping.ProgressFunc
}

// Result 規劃結果
type Result struct {
	ID       string // 歷史紀錄 ID，未保存時為空
	Source   string
	Document *Document
	Issues   []*common.ValidationError // 被驗證丟棄的紀錄
}

// Run 執行完整流程：取得來源、解析、縮放，需要時解析零售商品，最後寫入歷史
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	analysis, source, issues, err := p.analyze(ctx, req.Recipe)
	if err != nil {
		return nil, err
	}

	scaled, scaleIssues, err := p.Scale(ctx, source, analysis, req.TargetMeals)
	if err != nil {
		return nil, err
	}
	issues = append(issues, scaleIssues...)

	result := &Result{
		Source: source,
		Document: &Document{
			OriginalRecipe: analysis,
			ScaledRecipe:   scaled,
		},
		Issues: issues,
	}

	if req.Resolve {
		if err := p.Resolve(ctx, result.Document, req.Progress); err != nil {
			return nil, err
		}
	}

	result.ID = p.record(ctx, source, req.TargetMeals, result.Document)

	common.LogInfo("食譜規劃完成",
		zap.String("source", source),
		zap.Int("target_meals", req.TargetMeals),
		zap.Int("dropped_records", len(issues)),
		zap.Bool("resolved", req.Resolve),
		zap.Duration("耗時", time.Since(start)),
	)
	return result, nil
}

// Analyze 取得來源並解析為 RecipeAnalysis
func (p *Pipeline) Analyze(ctx context.Context, input string) (*recipe.RecipeAnalysis, []*common.ValidationError, error) {
	analysis, _, issues, err := p.analyze(ctx, input)
	return analysis, issues, err
}

func (p *Pipeline) analyze(ctx context.Context, input string) (*recipe.RecipeAnalysis, string, []*common.ValidationError, error) {
	if p.normalizer == nil {
		return nil, "", nil, common.InvalidRequest(ai.StageNormalize.String(), "", errOracleDisabled)
	}
	source, text, err := p.loadSource(ctx, input)
	if err != nil {
		return nil, source, nil, err
	}

	var (
		analysis *recipe.RecipeAnalysis
		issues   []*common.ValidationError
	)
	err = p.withRetry(ctx, ai.StageNormalize, source, func() error {
		var err error
		analysis, issues, err = p.normalizer.Normalize(ctx, source, text)
		return err
	})
	if err != nil {
		return nil, source, issues, attribute(err, source)
	}
	return analysis, source, issues, nil
}

// Scale 縮放已解析的食譜，source 只用於錯誤歸因
func (p *Pipeline) Scale(ctx context.Context, source string, analysis *recipe.RecipeAnalysis, targetMeals int) (*recipe.ScaledRecipe, []*common.ValidationError, error) {
	if p.scaler == nil {
		return nil, nil, common.InvalidRequest(ai.StageScale.String(), source, errOracleDisabled)
	}
	var (
		scaled *recipe.ScaledRecipe
		issues []*common.ValidationError
	)
	err := p.withRetry(ctx, ai.StageScale, source, func() error {
		var err error
		scaled, issues, err = p.scaler.Scale(ctx, analysis, targetMeals)
		return err
	})
	if err != nil {
		return nil, issues, attribute(err, source)
	}
	return scaled, issues, nil
}

// Resolve 為文件中的縮放食材解析零售商品，結果寫入 doc.WalmartProducts
func (p *Pipeline) Resolve(ctx context.Context, doc *Document, progress shopping.ProgressFunc) error {
	stage := ai.StageResolve.String()
	if p.resolver == nil {
		return common.InvalidRequest(stage, "", fmt.Errorf("retail resolution is disabled"))
	}
	if doc == nil || doc.ScaledRecipe == nil {
		return common.InvalidRequest(stage, "", fmt.Errorf("document has no scaled recipe"))
	}

	matches, err := p.resolver.ResolveAll(ctx, doc.ScaledRecipe.ScaledIngredients, progress)
	doc.WalmartProducts = matches
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}

	found := 0
	for _, m := range matches {
		if m.Product.Found() {
			found++
		}
	}
	common.LogInfo("零售商品解析完成",
		zap.Int("ingredients", len(matches)),
		zap.Int("found", found),
	)
	return nil
}

// loadSource 網址先抓取網頁文字，其他輸入視為食譜文字
func (p *Pipeline) loadSource(ctx context.Context, input string) (string, string, error) {
	if !recipe.IsURL(input) {
		return TextSource, input, nil
	}
	if p.fetcher == nil {
		return input, "", common.InvalidRequest(ai.StageFetch.String(), input, fmt.Errorf("recipe fetching is not configured"))
	}

	common.LogInfo("擷取食譜網頁", zap.String("url", input))
	text, err := p.fetcher.Fetch(ctx, input)
	if err != nil {
		return input, "", err
	}
	return input, text, nil
}

// record 寫入歷史；失敗只記錄警告，規劃結果仍然返回
func (p *Pipeline) record(ctx context.Context, source string, targetMeals int, doc *Document) string {
	if p.store == nil {
		return ""
	}

	data, err := EncodeDocument(doc)
	if err != nil {
		common.LogWarn("規劃歷史編碼失敗", zap.Error(err))
		return ""
	}

	plan := &storage.PlanModel{
		Source:        source,
		TargetMeals:   targetMeals,
		Servings:      doc.OriginalRecipe.Servings,
		MealType:      doc.OriginalRecipe.MealType,
		EstimatedCost: doc.ScaledRecipe.EstimatedCost,
		Resolved:      len(doc.WalmartProducts) > 0,
		Document:      string(data),
	}
	if err := p.store.Create(ctx, plan); err != nil {
		common.LogWarn("規劃歷史保存失敗",
			zap.Error(common.PersistenceFailure(ai.StagePersist.String(), source, err)),
		)
		return ""
	}
	return plan.ID
}

// withRetry 只對 OracleUnavailable 重試，其他錯誤直接返回
func (p *Pipeline) withRetry(ctx context.Context, stage ai.Stage, source string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, common.ErrOracleUnavailable) || attempt == p.retry.Attempts {
			return err
		}

		wait := p.retry.Backoff * time.Duration(attempt)
		common.LogWarn("推論服務暫時無法使用，稍後重試",
			zap.String("stage", stage.String()),
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
	return err
}

// attribute 錯誤未標示輸入時補上食譜來源
func attribute(err error, source string) error {
	ce, ok := err.(*common.CustomError)
	if !ok || ce.Input != "" {
		return err
	}
	attributed := *ce
	attributed.Input = source
	return &attributed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
