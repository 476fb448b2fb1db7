package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Category 食材分類，影響零售搜尋字詞
type Category string

// 食材分類
const (
	CategoryProduce Category = "produce"
	CategoryDairy   Category = "dairy"
	CategoryMeat    Category = "meat"
	CategoryPantry  Category = "pantry"
	CategorySpices  Category = "spices"
)

// 餐別
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
)

// DefaultTargetMeals 預設目標餐數
const DefaultTargetMeals = 7

// Ingredient 食材
type Ingredient struct {
	Name     string   `json:"name" validate:"required"`
	Amount   float64  `json:"amount" validate:"gt=0"`
	Unit     string   `json:"unit"`
	Notes    string   `json:"notes"`
	Category Category `json:"category,omitempty" validate:"omitempty,oneof=produce dairy meat pantry spices"`
}

// Quantity 數量與單位，例如 "1.75 cup"
func (i Ingredient) Quantity() string {
	return FormatQuantity(i.Amount, i.Unit)
}

// RecipeAnalysis 食譜解析結果
type RecipeAnalysis struct {
	Ingredients        []Ingredient `json:"ingredients" validate:"required,min=1,dive"`
	Servings           int          `json:"servings" validate:"gt=0"`
	MealType           string       `json:"meal_type"`
	PortionSize        string       `json:"portion_size"`
	CaloriesPerServing float64      `json:"calories_per_serving" validate:"gte=0"`
}

// ShoppingItem 採購清單項目，數量為實際可購買的包裝
type ShoppingItem struct {
	Name   string  `json:"name" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Unit   string  `json:"unit"`
	Notes  string  `json:"notes"`
}

// ScaledRecipe 縮放後的食譜
type ScaledRecipe struct {
	ScaledIngredients []Ingredient      `json:"scaled_ingredients" validate:"dive"`
	ShoppingList      []ShoppingItem    `json:"shopping_list" validate:"dive"`
	StorageTips       map[string]string `json:"storage_tips"`
	EstimatedCost     float64           `json:"estimated_cost" validate:"gte=0"`
}

// 商品查詢失敗時的占位字串
const (
	NameNotFound         = "Name not found"
	URLNotFound          = "URL not found"
	PriceNotFound        = "Price not found"
	SearchFailed         = "Search failed"
	ProductDetailsAbsent = "Product details not found"
)

// Product 零售商品
type Product struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Price          string `json:"price"`
	QuantityNeeded string `json:"quantity_needed"`
}

// Found 是否找到實際商品
func (p Product) Found() bool {
	switch p.Name {
	case "", NameNotFound, SearchFailed, ProductDetailsAbsent:
		return false
	}
	return true
}

// ProductMatch 食材與零售商品的對應
type ProductMatch struct {
	Ingredient Ingredient `json:"ingredient"`
	Product    Product    `json:"product"`
}

// FormatAmount 以最短的十進位表示輸出數量
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatQuantity 數量加單位，單位為空時只輸出數量
func FormatQuantity(amount float64, unit string) string {
	return strings.TrimSpace(FormatAmount(amount) + " " + unit)
}

// ScaleFactor 計算縮放比例
func ScaleFactor(targetMeals, servings int) (float64, error) {
	if targetMeals <= 0 {
		return 0, fmt.Errorf("target meals must be positive, got %d", targetMeals)
	}
	if servings <= 0 {
		return 0, fmt.Errorf("servings must be positive, got %d", servings)
	}
	return float64(targetMeals) / float64(servings), nil
}
