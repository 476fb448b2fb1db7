package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"recipe-scaler/internal/api/handlers/health"
	recipeHandler "recipe-scaler/internal/api/handlers/recipe"
	"recipe-scaler/internal/api/middleware"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由需要的服務
type Dependencies struct {
	Planner recipeHandler.Planner
	Plans   recipeHandler.PlanReader
	Health  *health.Handler
	Metrics *metrics.Metrics
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Planner == nil || deps.Plans == nil || deps.Health == nil {
		return nil, errors.New("router requires planner, plan history and health handler")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger(deps.Metrics))

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	// 健康檢查與指標不受限流與逾時影響
	router.GET("/health", deps.Health.HealthCheck)
	router.GET("/ready", deps.Health.ReadinessCheck)
	router.GET("/live", deps.Health.LivenessCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	api.Use(requestTimeout(cfg.Server.RequestTimeout))

	h := recipeHandler.NewHandler(deps.Planner, deps.Plans, cfg.App.Debug)
	dedup := middleware.NewDeduplicator(cfg.Server.DedupWindow)

	recipeGroup := api.Group("/recipe")
	{
		// 解析食譜文字或網址
		recipeGroup.POST("/analyze", h.HandleAnalyze)

		// 縮放已解析的食譜
		recipeGroup.POST("/scale", h.HandleScale)

		// 完整規劃，相同請求在視窗內只處理一次
		recipeGroup.POST("/plan", dedup.Handler(), h.HandlePlan)
	}

	plansGroup := api.Group("/plans")
	{
		plansGroup.GET("", h.HandleListPlans)
		plansGroup.GET("/:id", h.HandleGetPlan)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
	)

	return router, nil
}

// requestTimeout 為每個請求加上逾時，handler 尚未回應時返回 504
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeout),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, common.ErrorResponse{
				Code:    "REQUEST_TIMEOUT",
				Message: "request timeout after " + timeout.String(),
			})
		}
	}
}
