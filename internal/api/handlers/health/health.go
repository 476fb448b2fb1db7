package health

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"recipe-scaler/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Check 就緒檢查項目，返回 nil 表示正常
type Check func(ctx context.Context) error

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Model     string                 `json:"model,omitempty"`
	Runtime   map[string]interface{} `json:"runtime"`
	Cache     interface{}            `json:"cache,omitempty"`
}

// Handler 健康檢查處理器
type Handler struct {
	version    string
	model      string
	cacheStats func() interface{}
	checks     map[string]Check
	timeout    time.Duration
}

// NewHandler 創建健康檢查處理器
func NewHandler(version, model string) *Handler {
	return &Handler{
		version: version,
		model:   model,
		checks:  make(map[string]Check),
		timeout: 3 * time.Second,
	}
}

// AddCheck 註冊就緒檢查
func (h *Handler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

// SetCacheStats 設定快取統計來源
func (h *Handler) SetCacheStats(stats func() interface{}) {
	h.cacheStats = stats
}

// HealthCheck 健康檢查
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Model:     h.model,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.cacheStats != nil {
		response.Cache = h.cacheStats()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 依序執行所有就緒檢查，任一失敗返回 503
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			results[name] = err.Error()
			common.LogWarn("就緒檢查失敗", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": results,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": results,
	})
}

// LivenessCheck 存活檢查
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
