package recipe

import (
	"encoding/json"
	"errors"
	"testing"

	"recipe-scaler/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIngredient(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Ingredient
		wantErr string
	}{
		{
			name: "accepts fractional amount",
			raw:  `{"name": "salt", "amount": 0.5, "unit": "tsp", "notes": ""}`,
			want: Ingredient{Name: "salt", Amount: 0.5, Unit: "tsp"},
		},
		{
			name:    "rejects empty name",
			raw:     `{"name": "", "amount": 1, "unit": "cup"}`,
			wantErr: "name",
		},
		{
			name:    "rejects negative amount",
			raw:     `{"name": "salt", "amount": -1, "unit": "tsp"}`,
			wantErr: "amount",
		},
		{
			name:    "rejects zero amount",
			raw:     `{"name": "salt", "amount": 0, "unit": "tsp"}`,
			wantErr: "amount",
		},
		{
			name:    "rejects text amount",
			raw:     `{"name": "salt", "amount": "a pinch", "unit": ""}`,
			wantErr: "amount",
		},
		{
			name:    "rejects range",
			raw:     `{"name": "eggs", "amount": "2-3"}`,
			wantErr: "amount",
		},
		{
			name:    "rejects missing amount",
			raw:     `{"name": "eggs"}`,
			wantErr: "amount",
		},
		{
			name: "parses numeric string",
			raw:  `{"name": "flour", "amount": "2.5", "unit": "cups"}`,
			want: Ingredient{Name: "flour", Amount: 2.5, Unit: "cups"},
		},
		{
			name: "parses mixed fraction",
			raw:  `{"name": "milk", "amount": "1 1/2", "unit": "cup"}`,
			want: Ingredient{Name: "milk", Amount: 1.5, Unit: "cup"},
		},
		{
			name: "parses unicode fraction",
			raw:  `{"name": "butter", "amount": "½", "unit": "cup"}`,
			want: Ingredient{Name: "butter", Amount: 0.5, Unit: "cup"},
		},
		{
			name: "keeps known category and accepts units alias",
			raw:  `{"name": "garlic bulb", "amount": 1, "units": "whole", "category": "Produce"}`,
			want: Ingredient{Name: "garlic bulb", Amount: 1, Unit: "whole", Category: CategoryProduce},
		},
		{
			name: "clears unknown category",
			raw:  `{"name": "tofu", "amount": 1, "unit": "lb", "category": "frozen"}`,
			want: Ingredient{Name: "tofu", Amount: 1, Unit: "lb"},
		},
		{
			name:    "rejects non-object",
			raw:     `["salt", 1]`,
			wantErr: "not an ingredient object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateIngredient(json.RawMessage(tt.raw))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, common.IsValidationError(err))
				assert.ErrorIs(t, err, common.ErrValidation)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const validAnalysis = `{
	"ingredients": [
		{"name": "rice", "amount": 1, "unit": "cup", "notes": "long grain", "category": "pantry"},
		{"name": "salt", "amount": "1/2", "unit": "tsp", "notes": ""}
	],
	"servings": 4,
	"meal_type": "Dinner",
	"portion_size": "1 bowl",
	"calories_per_serving": 350
}`

func TestValidateRecipeAnalysis(t *testing.T) {
	analysis, issues, err := ValidateRecipeAnalysis(json.RawMessage(validAnalysis))
	require.NoError(t, err)
	assert.Empty(t, issues)

	assert.Equal(t, 4, analysis.Servings)
	assert.Equal(t, MealDinner, analysis.MealType)
	assert.Equal(t, "1 bowl", analysis.PortionSize)
	assert.Equal(t, 350.0, analysis.CaloriesPerServing)
	require.Len(t, analysis.Ingredients, 2)
	assert.Equal(t, "rice", analysis.Ingredients[0].Name)
	assert.Equal(t, CategoryPantry, analysis.Ingredients[0].Category)
	assert.Equal(t, 0.5, analysis.Ingredients[1].Amount)
}

func TestValidateRecipeAnalysisIsIdempotent(t *testing.T) {
	raw := json.RawMessage(validAnalysis)
	original := append(json.RawMessage(nil), raw...)

	first, _, err := ValidateRecipeAnalysis(raw)
	require.NoError(t, err)
	second, _, err := ValidateRecipeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, original, raw)

	// 驗證過的結果再驗證一次也不變
	encoded, err := json.Marshal(first)
	require.NoError(t, err)
	third, issues, err := ValidateRecipeAnalysis(encoded)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, first, third)
}

func TestValidateRecipeAnalysisKeepsValidSiblings(t *testing.T) {
	raw := `{
		"ingredients": [
			{"name": "rice", "amount": 2, "unit": "cup"},
			{"name": "", "amount": 1, "unit": "cup"},
			{"name": "pepper", "amount": "to taste"},
			{"name": "onion", "amount": 1, "unit": ""}
		],
		"servings": 2, "meal_type": "lunch", "portion_size": "plate", "calories_per_serving": 500
	}`

	analysis, issues, err := ValidateRecipeAnalysis(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, analysis.Ingredients, 2)
	assert.Equal(t, "rice", analysis.Ingredients[0].Name)
	assert.Equal(t, "onion", analysis.Ingredients[1].Name)

	require.Len(t, issues, 2)
	assert.Equal(t, "ingredients[1]", issues[0].Input)
	assert.Equal(t, "name", issues[0].Field)
	assert.Equal(t, "ingredients[2] (pepper)", issues[1].Input)
	assert.Equal(t, "amount", issues[1].Field)
}

func TestValidateRecipeAnalysisRejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing servings", `{"ingredients": [{"name": "rice", "amount": 1}], "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "servings"},
		{"null servings", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": null, "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "servings"},
		{"zero servings", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": 0, "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "servings"},
		{"fractional servings", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": 2.5, "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "servings"},
		{"string servings", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": "four", "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "servings"},
		{"missing ingredients", `{"servings": 4, "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "ingredients"},
		{"empty ingredients", `{"ingredients": [], "servings": 4, "meal_type": "dinner", "portion_size": "", "calories_per_serving": 1}`, "ingredients"},
		{"missing meal type", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": 4, "portion_size": "", "calories_per_serving": 1}`, "meal_type"},
		{"missing portion size", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": 4, "meal_type": "dinner", "calories_per_serving": 1}`, "portion_size"},
		{"negative calories", `{"ingredients": [{"name": "rice", "amount": 1}], "servings": 4, "meal_type": "dinner", "portion_size": "", "calories_per_serving": -5}`, "calories_per_serving"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, _, err := ValidateRecipeAnalysis(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.Nil(t, analysis)

			var ve *common.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, _, err := ValidateRecipeAnalysis(json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
}

func TestValidateScaledRecipe(t *testing.T) {
	raw := `{
		"scaled_ingredients": [{"name": "rice", "amount": 1.75, "unit": "cup"}],
		"shopping_list": [
			{"name": "long grain rice", "amount": 2, "units": "lb bag", "notes": "bulk"},
			{"name": "mystery", "amount": 0, "units": "box"}
		],
		"storage_tips": {
			"long grain rice": "Store in an airtight container.",
			"garlic": {"where": "pantry"}
		},
		"estimated_cost": 12.5
	}`

	scaled, issues, err := ValidateScaledRecipe(json.RawMessage(raw))
	require.NoError(t, err)

	require.Len(t, scaled.ScaledIngredients, 1)
	assert.Equal(t, 1.75, scaled.ScaledIngredients[0].Amount)

	require.Len(t, scaled.ShoppingList, 1)
	assert.Equal(t, ShoppingItem{Name: "long grain rice", Amount: 2, Unit: "lb bag", Notes: "bulk"}, scaled.ShoppingList[0])

	assert.Equal(t, map[string]string{"long grain rice": "Store in an airtight container."}, scaled.StorageTips)
	assert.Equal(t, 12.5, scaled.EstimatedCost)

	require.Len(t, issues, 2)
}

func TestValidateScaledRecipeRejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing scaled ingredients", `{"shopping_list": [], "storage_tips": {}, "estimated_cost": 1}`, "scaled_ingredients"},
		{"missing shopping list", `{"scaled_ingredients": [], "storage_tips": {}, "estimated_cost": 1}`, "shopping_list"},
		{"missing storage tips", `{"scaled_ingredients": [], "shopping_list": [], "estimated_cost": 1}`, "storage_tips"},
		{"missing cost", `{"scaled_ingredients": [], "shopping_list": [], "storage_tips": {}}`, "estimated_cost"},
		{"negative cost", `{"scaled_ingredients": [], "shopping_list": [], "storage_tips": {}, "estimated_cost": -3}`, "estimated_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ValidateScaledRecipe(json.RawMessage(tt.raw))
			var ve *common.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, _, err := ValidateScaledRecipe(json.RawMessage(`{"scaled_ingredients": [], "shopping_list": [], "storage_tips": ["tip"], "estimated_cost": 1}`))
	assert.Error(t, err)
}

func TestValidatePurchasePlanAcceptsCostString(t *testing.T) {
	plan, issues, err := ValidatePurchasePlan(json.RawMessage(`{"shopping_list": [{"name": "eggs", "amount": 1, "unit": "dozen"}], "storage_tips": {"eggs": "Refrigerate."}, "estimated_cost": "$1,024.50"}`))
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, 1024.5, plan.EstimatedCost)
	assert.Equal(t, "dozen", plan.ShoppingList[0].Unit)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{`2`, 2, true},
		{`0.25`, 0.25, true},
		{`"3"`, 3, true},
		{`"3/4"`, 0.75, true},
		{`"2 1/4"`, 2.25, true},
		{`"1½"`, 1.5, true},
		{`"1/0"`, 0, false},
		{`"2 5/4"`, 0, false},
		{`"some"`, 0, false},
		{`true`, 0, false},
		{`null`, 0, false},
		{`-0.5`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(json.RawMessage(tt.raw))
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
