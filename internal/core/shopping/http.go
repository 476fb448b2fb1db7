package shopping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrSessionClosed Session 已關閉
var ErrSessionClosed = errors.New("retail session is closed")

// HTTPBrowser 以 HTTP 取得搜尋頁並解析商品區塊
type HTTPBrowser struct {
	config config.RetailConfig
}

// NewHTTPBrowser 創建 HTTPBrowser
func NewHTTPBrowser(cfg config.RetailConfig) *HTTPBrowser {
	return &HTTPBrowser{config: cfg}
}

// Open 建立新的 Session，每個 Session 有自己的連線池與 cookie
func (b *HTTPBrowser) Open(ctx context.Context) (Session, error) {
	if b.config.BaseURL == "" {
		return nil, fmt.Errorf("retail base url is not configured")
	}

	client := resty.New().
		SetBaseURL(b.config.BaseURL).
		SetTimeout(b.config.WaitTimeout).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	if b.config.UserAgent != "" {
		client.SetHeader("User-Agent", b.config.UserAgent)
	}
	if b.config.Cookie != "" {
		client.SetHeader("Cookie", b.config.Cookie)
	}

	common.LogDebug("零售搜尋連線已開啟", zap.String("base_url", b.config.BaseURL))

	session := &httpSession{
		client:       client,
		baseURL:      b.config.BaseURL,
		waitTimeout:  b.config.WaitTimeout,
		pollInterval: b.config.PollInterval,
	}
	if session.waitTimeout <= 0 {
		session.waitTimeout = 10 * time.Second
	}
	if session.pollInterval <= 0 {
		session.pollInterval = 500 * time.Millisecond
	}
	return session, nil
}

type httpSession struct {
	client       *resty.Client
	baseURL      string
	waitTimeout  time.Duration
	pollInterval time.Duration
	closed       atomic.Bool
}

// Search 重複取得搜尋頁直到出現商品區塊或超過等待時間
func (s *httpSession) Search(ctx context.Context, query string) ([]Listing, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		listings, retry, err := s.fetch(waitCtx, query)
		if err == nil && len(listings) > 0 {
			return listings, nil
		}
		if err != nil && !retry {
			return nil, err
		}
		lastErr = err
		common.LogDebug("搜尋結果尚未出現",
			zap.String("query", query),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no product tiles after %s", s.waitTimeout)
			}
			return nil, common.ResolutionTimeout(ai.StageResolve.String(), query, lastErr)
		case <-ticker.C:
		}
	}
}

// fetch 取得一次搜尋頁；retry 表示錯誤可以再試
func (s *httpSession) fetch(ctx context.Context, query string) ([]Listing, bool, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/search")
	if err != nil {
		return nil, true, fmt.Errorf("search request failed: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("search returned status %d", code)
	case code != http.StatusOK:
		return nil, false, fmt.Errorf("search returned status %d", code)
	}

	listings, err := ParseListings(bytes.NewReader(resp.Body()), s.baseURL)
	if err != nil {
		return nil, false, err
	}
	return listings, true, nil
}

// Close 關閉 Session，可重複呼叫
func (s *httpSession) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.client.GetClient().CloseIdleConnections()
		common.LogDebug("零售搜尋連線已關閉")
	}
	return nil
}
