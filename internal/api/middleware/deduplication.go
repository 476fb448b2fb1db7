package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"recipe-scaler/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deduplicator 拒絕在視窗內重複送出的相同 POST 請求
type Deduplicator struct {
	mu       sync.Mutex
	requests map[string]time.Time
	window   time.Duration
	lastScan time.Time
	now      func() time.Time
}

// NewDeduplicator 創建去重器
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		requests: make(map[string]time.Time),
		window:   window,
		now:      time.Now,
	}
}

// seen 記錄指紋，視窗內已出現過時返回 true
func (d *Deduplicator) seen(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastScan) > 10*d.window {
		d.lastScan = now
		for k, t := range d.requests {
			if now.Sub(t) > d.window {
				delete(d.requests, k)
			}
		}
	}

	if last, ok := d.requests[fingerprint]; ok && now.Sub(last) <= d.window {
		return true
	}
	d.requests[fingerprint] = now
	return false
}

// Handler 去重中間件，以用戶端、路徑與請求體雜湊作為指紋
func (d *Deduplicator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.window <= 0 || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			common.LogWarn("Failed to read request body", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
				Code:    common.ErrCodeInvalidRequest,
				Message: "request body could not be read",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := sha256.Sum256(body)
		fingerprint := c.ClientIP() + ":" + c.Request.URL.Path + ":" + hex.EncodeToString(hash[:])

		if d.seen(fingerprint) {
			common.LogInfo("Duplicate request rejected",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "duplicate request",
			})
			return
		}

		c.Next()
	}
}
