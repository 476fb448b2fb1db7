package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrNoJSONObject 回覆中找不到 JSON 物件
var ErrNoJSONObject = errors.New("no JSON object found")

// ParseJSONBytes 解析 JSON 位元組切片到結構體，數字保留為 json.Number
func ParseJSONBytes(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return err
		}
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

var unquotedKeyPattern = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// QuoteJSONKeys 將未加雙引號的鍵補上雙引號
func QuoteJSONKeys(raw string) string {
	return unquotedKeyPattern.ReplaceAllString(raw, `$1"$2":`)
}

// ExtractJSONObject 從模型回覆中取出第一個 "{" 到最後一個 "}" 之間的內容，
// 並在必要時補上未加引號的鍵
func ExtractJSONObject(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return nil, ErrNoJSONObject
	}
	candidate := content[start : end+1]

	if json.Valid([]byte(candidate)) {
		return []byte(candidate), nil
	}
	repaired := QuoteJSONKeys(candidate)
	if json.Valid([]byte(repaired)) {
		return []byte(repaired), nil
	}
	return nil, fmt.Errorf("invalid JSON object: %w", json.Unmarshal([]byte(candidate), new(interface{})))
}

// ToIndentedJSON 以兩格縮排輸出 JSON
func ToIndentedJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
