package recipe

import (
	"context"
	"encoding/json"
	"strings"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// schemaMismatch 回覆結構不符時的錯誤信息，細節保留在原因中
const schemaMismatch = "reply does not match the schema"

// Oracle 推論服務，返回回覆中的 JSON 物件
type Oracle interface {
	Ask(ctx context.Context, q ai.Query) (json.RawMessage, error)
}

// Normalizer 將食譜文字轉為結構化的 RecipeAnalysis
type Normalizer struct {
	oracle  Oracle
	metrics *metrics.Metrics
}

// NewNormalizer 創建 Normalizer
func NewNormalizer(oracle Oracle, m *metrics.Metrics) *Normalizer {
	return &Normalizer{oracle: oracle, metrics: m}
}

// Normalize 解析食譜文字。source 為來源識別（URL 或 "text"），只用於日誌與錯誤。
// 被驗證丟棄的食材以第二個返回值回報。
func (n *Normalizer) Normalize(ctx context.Context, source, text string) (*RecipeAnalysis, []*common.ValidationError, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, common.NewFieldError(source, "recipe_text", "must not be empty")
	}

	raw, err := n.oracle.Ask(ctx, ai.Query{
		Stage:  ai.StageNormalize,
		Input:  source,
		System: systemPrompt,
		Prompt: buildNormalizePrompt(text),
		Validate: func(raw json.RawMessage) error {
			_, _, err := ValidateRecipeAnalysis(raw)
			return err
		},
	})
	if err != nil {
		return nil, nil, err
	}

	analysis, issues, err := ValidateRecipeAnalysis(raw)
	if err != nil {
		common.LogWarn("食譜解析回覆不符合結構",
			zap.String("source", source),
			zap.Error(err),
		)
		return nil, issues, common.MalformedResponse(ai.StageNormalize.String(), source, schemaMismatch, err)
	}

	reportIssues(n.metrics, ai.StageNormalize, source, issues)

	common.LogInfo("食譜解析完成",
		zap.String("source", source),
		zap.Int("ingredients", len(analysis.Ingredients)),
		zap.Int("servings", analysis.Servings),
		zap.String("meal_type", analysis.MealType),
	)
	return analysis, issues, nil
}

func reportIssues(m *metrics.Metrics, stage ai.Stage, source string, issues []*common.ValidationError) {
	if len(issues) == 0 {
		return
	}
	m.ValidationDropped(stage.String(), len(issues))
	for _, issue := range issues {
		common.LogWarn("紀錄驗證失敗，已略過",
			zap.String("stage", stage.String()),
			zap.String("source", source),
			zap.String("issue", issue.Error()),
		)
	}
}
