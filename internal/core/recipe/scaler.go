package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// Scaler 依目標餐數縮放食譜並產生採購清單
type Scaler struct {
	oracle    Oracle
	mode      string
	tolerance float64
	metrics   *metrics.Metrics
}

// NewScaler 創建 Scaler
func NewScaler(oracle Oracle, cfg config.ScalingConfig, m *metrics.Metrics) *Scaler {
	mode := cfg.Mode
	if mode == "" {
		mode = config.ScalingModeSplit
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 1e-6
	}
	return &Scaler{oracle: oracle, mode: mode, tolerance: tolerance, metrics: m}
}

// Scale 縮放食譜，不修改 analysis。
// split 模式在本地計算縮放用量，只向推論服務要採購清單、保存建議與估價；
// oracle 模式整份交給推論服務，與本地計算的差異只記錄警告。
func (s *Scaler) Scale(ctx context.Context, analysis *RecipeAnalysis, targetMeals int) (*ScaledRecipe, []*common.ValidationError, error) {
	stage := ai.StageScale.String()
	if analysis == nil {
		return nil, nil, common.InvalidRequest(stage, "", fmt.Errorf("recipe analysis is required"))
	}

	factor, err := ScaleFactor(targetMeals, analysis.Servings)
	if err != nil {
		return nil, nil, common.InvalidScalingFactor(stage, "", err.Error())
	}

	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode recipe analysis: %w", err)
	}

	local := ScaleIngredients(analysis.Ingredients, factor)

	var (
		result *ScaledRecipe
		issues []*common.ValidationError
	)
	if s.mode == config.ScalingModeOracle {
		result, issues, err = s.scaleWithOracle(ctx, string(analysisJSON), analysis.Servings, targetMeals, factor)
		if err == nil {
			s.checkDeviation(local, result.ScaledIngredients)
		}
	} else {
		result, issues, err = s.scaleSplit(ctx, string(analysisJSON), local, analysis.Servings, targetMeals, factor)
	}
	if err != nil {
		return nil, issues, err
	}

	reportIssues(s.metrics, ai.StageScale, "", issues)

	for _, shortfall := range CheckCoverage(result.ScaledIngredients, result.ShoppingList) {
		common.LogWarn("採購清單可能不足", zap.String("detail", shortfall.String()))
	}

	common.LogInfo("食譜縮放完成",
		zap.String("mode", s.mode),
		zap.Float64("factor", factor),
		zap.Int("shopping_items", len(result.ShoppingList)),
		zap.Float64("estimated_cost", result.EstimatedCost),
	)
	return result, issues, nil
}

func (s *Scaler) scaleSplit(ctx context.Context, analysisJSON string, local []Ingredient, servings, target int, factor float64) (*ScaledRecipe, []*common.ValidationError, error) {
	scaledJSON, err := json.MarshalIndent(local, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode scaled ingredients: %w", err)
	}

	raw, err := s.oracle.Ask(ctx, ai.Query{
		Stage:  ai.StageScale,
		System: systemPrompt,
		Prompt: buildPurchasePlanPrompt(analysisJSON, string(scaledJSON), servings, target, factor),
		Validate: func(raw json.RawMessage) error {
			_, _, err := ValidatePurchasePlan(raw)
			return err
		},
	})
	if err != nil {
		return nil, nil, err
	}

	plan, issues, err := ValidatePurchasePlan(raw)
	if err != nil {
		return nil, issues, common.MalformedResponse(ai.StageScale.String(), "", schemaMismatch, err)
	}

	return &ScaledRecipe{
		ScaledIngredients: local,
		ShoppingList:      plan.ShoppingList,
		StorageTips:       plan.StorageTips,
		EstimatedCost:     plan.EstimatedCost,
	}, issues, nil
}

func (s *Scaler) scaleWithOracle(ctx context.Context, analysisJSON string, servings, target int, factor float64) (*ScaledRecipe, []*common.ValidationError, error) {
	raw, err := s.oracle.Ask(ctx, ai.Query{
		Stage:  ai.StageScale,
		System: systemPrompt,
		Prompt: buildScaledRecipePrompt(analysisJSON, servings, target, factor),
		Validate: func(raw json.RawMessage) error {
			_, _, err := validateOracleScaled(raw)
			return err
		},
	})
	if err != nil {
		return nil, nil, err
	}

	result, issues, err := validateOracleScaled(raw)
	if err != nil {
		return nil, issues, common.MalformedResponse(ai.StageScale.String(), "", schemaMismatch, err)
	}
	return result, issues, nil
}

// validateOracleScaled oracle 模式的回覆必須至少有一個有效的縮放食材
func validateOracleScaled(raw json.RawMessage) (*ScaledRecipe, []*common.ValidationError, error) {
	result, issues, err := ValidateScaledRecipe(raw)
	if err != nil {
		return nil, issues, err
	}
	if len(result.ScaledIngredients) == 0 {
		return nil, issues, common.NewFieldError("scaled recipe", "scaled_ingredients", "no valid scaled ingredients")
	}
	return result, issues, nil
}

// checkDeviation 比對推論服務的縮放數量與本地計算
func (s *Scaler) checkDeviation(expected, got []Ingredient) {
	if len(expected) != len(got) {
		common.LogWarn("縮放後食材數量與原食譜不同",
			zap.Int("expected", len(expected)),
			zap.Int("got", len(got)),
		)
	}

	byName := make(map[string]Ingredient, len(got))
	for _, ing := range got {
		byName[strings.ToLower(ing.Name)] = ing
	}

	for _, want := range expected {
		have, ok := byName[strings.ToLower(want.Name)]
		if !ok {
			continue
		}
		amount, err := ConvertAmount(have.Amount, have.Unit, want.Unit)
		if err != nil {
			continue
		}
		if math.Abs(amount-want.Amount) > s.tolerance*math.Max(1, want.Amount) {
			common.LogWarn("縮放數量與比例不符",
				zap.String("ingredient", want.Name),
				zap.String("expected", want.Quantity()),
				zap.String("got", have.Quantity()),
			)
		}
	}
}
