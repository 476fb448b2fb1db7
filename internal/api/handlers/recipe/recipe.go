package recipe

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/pipeline"
	recipeCore "recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/infrastructure/storage"
	"recipe-scaler/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Planner 食譜規劃流程
type Planner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Analyze(ctx context.Context, input string) (*recipeCore.RecipeAnalysis, []*common.ValidationError, error)
	Scale(ctx context.Context, source string, analysis *recipeCore.RecipeAnalysis, targetMeals int) (*recipeCore.ScaledRecipe, []*common.ValidationError, error)
}

// PlanReader 查詢規劃歷史
type PlanReader interface {
	FindByID(ctx context.Context, id string) (*storage.PlanModel, error)
	List(ctx context.Context, offset, limit int) ([]*storage.PlanModel, int64, error)
}

// AnalyzeRequest 解析食譜
type AnalyzeRequest struct {
	Recipe string `json:"recipe" binding:"required"` // 食譜文字或網址
}

// AnalyzeResponse 解析結果
type AnalyzeResponse struct {
	OriginalRecipe *recipeCore.RecipeAnalysis `json:"original_recipe"`
	Dropped        []string                   `json:"dropped,omitempty"`
}

// ScaleRequest 縮放已解析的食譜
type ScaleRequest struct {
	OriginalRecipe json.RawMessage `json:"original_recipe" binding:"required"`
	TargetMeals    *int            `json:"target_meals,omitempty"`
}

// ScaleResponse 縮放結果
type ScaleResponse struct {
	ScaledRecipe *recipeCore.ScaledRecipe `json:"scaled_recipe"`
	Dropped      []string                 `json:"dropped,omitempty"`
}

// PlanRequest 完整規劃
type PlanRequest struct {
	Recipe      string `json:"recipe" binding:"required"`
	TargetMeals *int   `json:"target_meals,omitempty"`
	Resolve     bool   `json:"resolve"`
}

// PlanResponse 規劃結果，內容與輸出文件相同並附上歷史 ID
type PlanResponse struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	*pipeline.Document
	Dropped []string `json:"dropped,omitempty"`
}

// PlanListResponse 規劃歷史列表
type PlanListResponse struct {
	Plans  []*storage.PlanModel `json:"plans"`
	Total  int64                `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

// Handler 食譜處理程序
type Handler struct {
	planner      Planner
	plans        PlanReader
	defaultMeals int
	debug        bool
}

// NewHandler 創建新的食譜處理程序
func NewHandler(planner Planner, plans PlanReader, debug bool) *Handler {
	return &Handler{
		planner:      planner,
		plans:        plans,
		defaultMeals: recipeCore.DefaultTargetMeals,
		debug:        debug,
	}
}

// HandleAnalyze 解析食譜文字或網址
func (h *Handler) HandleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if !h.bind(c, &req) {
		return
	}

	start := time.Now()
	analysis, issues, err := h.planner.Analyze(c.Request.Context(), req.Recipe)
	if err != nil {
		h.respondError(c, err)
		return
	}

	common.LogInfo("食譜解析請求完成",
		zap.String("request_id", requestid.Get(c)),
		zap.Int("ingredients", len(analysis.Ingredients)),
		zap.Duration("耗時", time.Since(start)),
	)
	c.JSON(http.StatusOK, AnalyzeResponse{
		OriginalRecipe: analysis,
		Dropped:        describeIssues(issues),
	})
}

// HandleScale 縮放已解析的食譜
func (h *Handler) HandleScale(c *gin.Context) {
	var req ScaleRequest
	if !h.bind(c, &req) {
		return
	}

	// 請求中的解析結果與推論回覆使用相同的驗證
	analysis, issues, err := recipeCore.ValidateRecipeAnalysis(req.OriginalRecipe)
	if err != nil {
		reqErr := common.InvalidRequest(ai.StageScale.String(), "original_recipe", err)
		reqErr.Message = "original_recipe: " + err.Error()
		h.respondError(c, reqErr)
		return
	}

	scaled, scaleIssues, err := h.planner.Scale(c.Request.Context(), "request", analysis, h.targetMeals(req.TargetMeals))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ScaleResponse{
		ScaledRecipe: scaled,
		Dropped:      describeIssues(append(issues, scaleIssues...)),
	})
}

// HandlePlan 解析、縮放並視需要解析零售商品
func (h *Handler) HandlePlan(c *gin.Context) {
	var req PlanRequest
	if !h.bind(c, &req) {
		return
	}

	common.LogInfo("開始處理食譜規劃請求",
		zap.String("request_id", requestid.Get(c)),
		zap.Bool("resolve", req.Resolve),
	)

	result, err := h.planner.Run(c.Request.Context(), pipeline.Request{
		Recipe:      req.Recipe,
		TargetMeals: h.targetMeals(req.TargetMeals),
		Resolve:     req.Resolve,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, PlanResponse{
		ID:       result.ID,
		Source:   result.Source,
		Document: result.Document,
		Dropped:  describeIssues(result.Issues),
	})
}

// HandleListPlans 列出規劃歷史
func (h *Handler) HandleListPlans(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", storage.DefaultListLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	plans, total, err := h.plans.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if plans == nil {
		plans = []*storage.PlanModel{}
	}

	c.JSON(http.StatusOK, PlanListResponse{
		Plans:  plans,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

// HandleGetPlan 取得單一規劃的完整文件
func (h *Handler) HandleGetPlan(c *gin.Context) {
	id := c.Param("id")
	plan, err := h.plans.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	doc, err := pipeline.DecodeDocument([]byte(plan.Document))
	if err != nil {
		h.respondError(c, common.PersistenceFailure(ai.StagePersist.String(), id, err))
		return
	}

	c.JSON(http.StatusOK, PlanResponse{
		ID:       plan.ID,
		Source:   plan.Source,
		Document: doc,
	})
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestid.Get(c)),
		)
		h.respondError(c, common.InvalidRequest("", "", err))
		return false
	}
	return true
}

func (h *Handler) targetMeals(v *int) int {
	if v == nil {
		return h.defaultMeals
	}
	return *v
}

func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(common.StatusOf(err), common.ToErrorResponse(err, h.debug))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, common.NewFieldError("query", key, "must be a non-negative integer")
	}
	return v, nil
}

func describeIssues(issues []*common.ValidationError) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Error()
	}
	return out
}
