package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-scaler/internal/api"
	"recipe-scaler/internal/api/handlers/health"
	"recipe-scaler/internal/core/ai/cache"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/container"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	ctx := context.Background()

	// 初始化服務
	c, err := container.Build(ctx, cfg)
	if err != nil {
		common.LogFatal("Failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			common.LogWarn("Failed to release resources", zap.Error(err))
		}
	}()

	healthHandler := health.NewHandler(cfg.App.Version, c.Oracle.Model())
	healthHandler.SetCacheStats(c.CacheStats)
	healthHandler.AddCheck("plan_history", c.Plans.Ping)
	if redisStore, ok := c.Cache.(*cache.RedisStore); ok {
		healthHandler.AddCheck("redis", redisStore.Ping)
	}

	// 設置路由
	router, err := api.SetupRouter(cfg, api.Dependencies{
		Planner: c.Pipeline,
		Plans:   c.Plans,
		Health:  healthHandler,
		Metrics: c.Metrics,
	})
	if err != nil {
		common.LogFatal("Failed to setup router", zap.Error(err))
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	serverErr := make(chan error, 1)
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中斷信號或服務器錯誤
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		common.LogError("Failed to start server", zap.Error(err))
		return
	}

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
		return
	}

	common.LogInfo("Server exited")
}
