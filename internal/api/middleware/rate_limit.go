package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"recipe-scaler/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientLimiter 每個用戶端一個令牌桶
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 依用戶端 IP 限流，window 內最多 requests 個請求
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	window   time.Duration
	lastScan time.Time
	now      func() time.Time
}

// NewRateLimiter 創建新的限流器
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		window:  window,
		now:     time.Now,
	}
}

// Allow 檢查該用戶端是否允許請求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// evictIdle 移除超過兩個視窗未出現的用戶端
func (rl *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(rl.lastScan) < rl.window {
		return
	}
	rl.lastScan = now
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > 2*rl.window {
			delete(rl.clients, key)
		}
	}
}

// RateLimit 限流中間件
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(requests, window)
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds() / float64(limiter.burst))))

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			common.LogInfo("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)

			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "too many requests",
			})
			return
		}

		c.Next()
	}
}
