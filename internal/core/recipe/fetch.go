package recipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fetcher 下載食譜網頁並取出純文字
type Fetcher struct {
	client   *resty.Client
	maxChars int
}

// NewFetcher 創建 Fetcher
func NewFetcher(cfg config.SourceConfig, userAgent string) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &Fetcher{client: client, maxChars: cfg.MaxChars}
}

// IsURL 判斷輸入是否為 http(s) 網址
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch 下載網頁並返回去除 script 與 style 後的文字
func (f *Fetcher) Fetch(ctx context.Context, recipeURL string) (string, error) {
	stage := ai.StageFetch.String()
	if !IsURL(recipeURL) {
		return "", common.InvalidRequest(stage, recipeURL, fmt.Errorf("not an http(s) url"))
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(recipeURL)
	if err != nil {
		return "", common.SourceUnavailable(stage, recipeURL, err)
	}
	if resp.IsError() {
		return "", common.SourceUnavailable(stage, recipeURL, fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	text, err := ExtractText(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", common.SourceUnavailable(stage, recipeURL, err)
	}
	if text == "" {
		return "", common.SourceUnavailable(stage, recipeURL, fmt.Errorf("page has no text content"))
	}

	if f.maxChars > 0 && len([]rune(text)) > f.maxChars {
		text = string([]rune(text)[:f.maxChars])
	}

	common.LogInfo("食譜網頁已下載",
		zap.String("url", recipeURL),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// ExtractText 解析 HTML 並返回可見文字，每個文字節點一行
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
				lines = append(lines, line)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(lines, "\n"), nil
}
