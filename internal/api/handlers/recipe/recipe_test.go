package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"recipe-scaler/internal/core/pipeline"
	recipeCore "recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/infrastructure/storage"
	"recipe-scaler/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlanner struct {
	runReq      pipeline.Request
	scaleTarget int
	scaleInput  *recipeCore.RecipeAnalysis
	err         error
}

func sampleAnalysis() *recipeCore.RecipeAnalysis {
	return &recipeCore.RecipeAnalysis{
		Ingredients:        []recipeCore.Ingredient{{Name: "rice", Amount: 1, Unit: "cup"}},
		Servings:           4,
		MealType:           recipeCore.MealDinner,
		PortionSize:        "1 bowl",
		CaloriesPerServing: 200,
	}
}

func sampleScaled() *recipeCore.ScaledRecipe {
	return &recipeCore.ScaledRecipe{
		ScaledIngredients: []recipeCore.Ingredient{{Name: "rice", Amount: 1.75, Unit: "cup"}},
		ShoppingList:      []recipeCore.ShoppingItem{{Name: "rice", Amount: 2, Unit: "lb"}},
		StorageTips:       map[string]string{"rice": "Keep dry."},
		EstimatedCost:     3.49,
	}
}

func (f *fakePlanner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.runReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		ID:       "plan-1",
		Source:   pipeline.TextSource,
		Document: &pipeline.Document{OriginalRecipe: sampleAnalysis(), ScaledRecipe: sampleScaled()},
		Issues:   []*common.ValidationError{common.NewFieldError("ingredients[1] (salt)", "amount", "must be positive")},
	}, nil
}

func (f *fakePlanner) Analyze(ctx context.Context, input string) (*recipeCore.RecipeAnalysis, []*common.ValidationError, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return sampleAnalysis(), nil, nil
}

func (f *fakePlanner) Scale(ctx context.Context, source string, analysis *recipeCore.RecipeAnalysis, targetMeals int) (*recipeCore.ScaledRecipe, []*common.ValidationError, error) {
	f.scaleInput = analysis
	f.scaleTarget = targetMeals
	if f.err != nil {
		return nil, nil, f.err
	}
	return sampleScaled(), nil, nil
}

func setupRouter(t *testing.T, planner Planner) (*gin.Engine, *storage.PlanStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.Open("", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := NewHandler(planner, store, false)
	r := gin.New()
	r.POST("/recipe/analyze", h.HandleAnalyze)
	r.POST("/recipe/scale", h.HandleScale)
	r.POST("/recipe/plan", h.HandlePlan)
	r.GET("/plans", h.HandleListPlans)
	r.GET("/plans/:id", h.HandleGetPlan)
	return r, store
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandleAnalyze(t *testing.T) {
	r, _ := setupRouter(t, &fakePlanner{})

	w := do(r, http.MethodPost, "/recipe/analyze", `{"recipe": "1 cup rice"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.OriginalRecipe.Servings)
	assert.Empty(t, resp.Dropped)
}

func TestHandleAnalyzeBadRequest(t *testing.T) {
	r, _ := setupRouter(t, &fakePlanner{})

	w := do(r, http.MethodPost, "/recipe/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), common.ErrCodeInvalidRequest)
}

func TestHandleAnalyzeOracleErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{common.OracleUnavailable("normalize", "text", errors.New("timeout")), http.StatusServiceUnavailable, common.ErrCodeOracleUnavailable},
		{common.MalformedResponse("normalize", "text", "servings: required key is missing", nil), http.StatusBadGateway, common.ErrCodeMalformedResponse},
		{common.SourceUnavailable("fetch", "https://x.test", nil), http.StatusBadGateway, common.ErrCodeSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			r, _ := setupRouter(t, &fakePlanner{err: tt.err})

			w := do(r, http.MethodPost, "/recipe/analyze", `{"recipe": "1 cup rice"}`)
			assert.Equal(t, tt.status, w.Code)

			var resp common.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Stage)
			assert.Empty(t, resp.Details)
		})
	}
}

func TestHandleScale(t *testing.T) {
	planner := &fakePlanner{}
	r, _ := setupRouter(t, planner)

	body := `{"original_recipe": {"ingredients": [{"name": "rice", "amount": "1", "unit": "cup"}], "servings": 4, "meal_type": "Dinner", "portion_size": "1 bowl", "calories_per_serving": 200}}`
	w := do(r, http.MethodPost, "/recipe/scale", body)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, recipeCore.DefaultTargetMeals, planner.scaleTarget)
	require.NotNil(t, planner.scaleInput)
	assert.Equal(t, 1.0, planner.scaleInput.Ingredients[0].Amount)
	assert.Equal(t, "dinner", planner.scaleInput.MealType)

	var resp ScaleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 1.75, resp.ScaledRecipe.ScaledIngredients[0].Amount, 1e-9)
}

func TestHandleScaleRejectsInvalidAnalysis(t *testing.T) {
	planner := &fakePlanner{}
	r, _ := setupRouter(t, planner)

	w := do(r, http.MethodPost, "/recipe/scale", `{"original_recipe": {"ingredients": [], "servings": 4}, "target_meals": 7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, planner.scaleInput)

	// 非除錯模式下也要指出出錯的欄位
	w = do(r, http.MethodPost, "/recipe/scale", `{"original_recipe": {"ingredients": [{"name": "rice", "amount": 1, "unit": "cup"}], "meal_type": "dinner", "portion_size": "1 bowl", "calories_per_serving": 200}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.ErrCodeInvalidRequest, resp.Code)
	assert.Equal(t, "original_recipe", resp.Input)
	assert.Contains(t, resp.Message, "original_recipe: ")
	assert.Contains(t, resp.Message, "servings")
	assert.Empty(t, resp.Details)
}

func TestHandleScaleInvalidFactor(t *testing.T) {
	planner := &fakePlanner{err: common.InvalidScalingFactor("scale", "request", "target meals must be positive, got 0")}
	r, _ := setupRouter(t, planner)

	body := `{"original_recipe": {"ingredients": [{"name": "rice", "amount": 1, "unit": "cup"}], "servings": 4, "meal_type": "dinner", "portion_size": "bowl", "calories_per_serving": 200}, "target_meals": 0}`
	w := do(r, http.MethodPost, "/recipe/scale", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, planner.scaleTarget)
	assert.Contains(t, w.Body.String(), common.ErrCodeInvalidScalingFactor)
}

func TestHandlePlan(t *testing.T) {
	planner := &fakePlanner{}
	r, _ := setupRouter(t, planner)

	w := do(r, http.MethodPost, "/recipe/plan", `{"recipe": "1 cup rice", "target_meals": 14, "resolve": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 14, planner.runReq.TargetMeals)
	assert.True(t, planner.runReq.Resolve)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "plan-1", resp["id"])
	assert.Contains(t, resp, "original_recipe")
	assert.Contains(t, resp, "scaled_recipe")
	assert.NotContains(t, resp, "walmart_products")
	assert.Equal(t, []interface{}{"ingredients[1] (salt): amount: must be positive"}, resp["dropped"])
}

func TestHandlePlansHistory(t *testing.T) {
	r, store := setupRouter(t, &fakePlanner{})

	data, err := pipeline.EncodeDocument(&pipeline.Document{OriginalRecipe: sampleAnalysis(), ScaledRecipe: sampleScaled()})
	require.NoError(t, err)
	plan := &storage.PlanModel{Source: "text", TargetMeals: 7, Servings: 4, Document: string(data)}
	require.NoError(t, store.Create(context.Background(), plan))

	w := do(r, http.MethodGet, "/plans?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list PlanListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 5, list.Limit)
	require.Len(t, list.Plans, 1)
	assert.Equal(t, plan.ID, list.Plans[0].ID)

	w = do(r, http.MethodGet, "/plans/"+plan.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, plan.ID, got["id"])
	assert.Contains(t, got, "scaled_recipe")

	w = do(r, http.MethodGet, "/plans/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/plans?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
