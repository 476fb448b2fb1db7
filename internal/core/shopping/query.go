package shopping

import (
	"strings"

	"recipe-scaler/internal/core/recipe"
)

// 各分類中代表非食品的關鍵字
var invalidKeywords = map[recipe.Category][]string{
	recipe.CategoryProduce: {"seeds", "plant", "garden", "growing"},
	recipe.CategoryDairy:   {"chips", "snacks", "artificial"},
	recipe.CategoryMeat:    {"pet", "dog", "cat", "toy"},
}

// BuildQuery 依分類組合搜尋字詞
func BuildQuery(ing recipe.Ingredient) string {
	name := strings.TrimSpace(ing.Name)
	switch ing.Category {
	case recipe.CategoryProduce, recipe.CategoryMeat:
		return "fresh " + name
	case recipe.CategoryDairy:
		return "dairy " + name
	case recipe.CategorySpices:
		return name + " spice"
	default:
		return name
	}
}

// IsValidProduct 檢查商品名稱是否符合食材：排除分類黑名單，且需包含食材名稱
func IsValidProduct(productName string, ing recipe.Ingredient) bool {
	product := strings.ToLower(productName)
	if strings.TrimSpace(product) == "" {
		return false
	}

	for _, kw := range invalidKeywords[ing.Category] {
		if containsWord(product, kw) {
			return false
		}
	}

	name := strings.ToLower(strings.TrimSpace(ing.Name))
	if strings.Contains(product, name) {
		return true
	}

	// 名稱中每個有意義的字都要出現，例如 "garlic bulb" 對 "Fresh Garlic, 3 Count Bulb"
	tokens := significantTokens(name)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(product, tok) {
			return false
		}
	}
	return true
}

func significantTokens(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// containsWord 以字詞邊界比對，避免 "cat" 命中 "delicate"
func containsWord(s, word string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if tok == word || tok == word+"s" {
			return true
		}
	}
	return false
}
