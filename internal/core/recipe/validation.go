package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"recipe-scaler/internal/pkg/common"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// rawIngredient 推論回覆中的食材，指標欄位用於判斷缺少的鍵
type rawIngredient struct {
	Name     *string         `json:"name"`
	Amount   json.RawMessage `json:"amount"`
	Unit     *string         `json:"unit"`
	Units    *string         `json:"units"`
	Notes    *string         `json:"notes"`
	Category *string         `json:"category"`
}

type rawAnalysis struct {
	Ingredients        *[]json.RawMessage `json:"ingredients"`
	Servings           json.RawMessage    `json:"servings"`
	MealType           *string            `json:"meal_type"`
	PortionSize        *string            `json:"portion_size"`
	CaloriesPerServing json.RawMessage    `json:"calories_per_serving"`
}

type rawPurchasePlan struct {
	ShoppingList  *[]json.RawMessage          `json:"shopping_list"`
	StorageTips   *map[string]json.RawMessage `json:"storage_tips"`
	EstimatedCost json.RawMessage             `json:"estimated_cost"`
}

type rawScaled struct {
	ScaledIngredients *[]json.RawMessage `json:"scaled_ingredients"`
	rawPurchasePlan
}

// PurchasePlan 推論服務負責的採購部分
type PurchasePlan struct {
	ShoppingList  []ShoppingItem
	StorageTips   map[string]string
	EstimatedCost float64
}

// ValidateIngredient 驗證單一食材
func ValidateIngredient(raw json.RawMessage) (Ingredient, error) {
	return validateIngredient(raw, "ingredient")
}

func validateIngredient(raw json.RawMessage, input string) (Ingredient, error) {
	var r rawIngredient
	if err := json.Unmarshal(raw, &r); err != nil {
		return Ingredient{}, common.NewFieldError(input, "", "not an ingredient object: "+err.Error())
	}

	name := ""
	if r.Name != nil {
		name = strings.TrimSpace(*r.Name)
	}
	if name == "" {
		return Ingredient{}, common.NewFieldError(input, "name", "must not be empty")
	}
	input = fmt.Sprintf("%s (%s)", input, name)

	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return Ingredient{}, common.NewFieldError(input, "amount", err.Error())
	}

	ing := Ingredient{
		Name:     name,
		Amount:   amount,
		Unit:     firstString(r.Unit, r.Units),
		Notes:    firstString(r.Notes),
		Category: NormalizeCategory(firstString(r.Category)),
	}
	if err := validate.Struct(ing); err != nil {
		return Ingredient{}, common.NewFieldError(input, "", err.Error())
	}
	return ing, nil
}

// ValidateRecipeAnalysis 驗證食譜解析結果。
// 個別食材錯誤以第二個返回值回報且不影響其他食材；結構錯誤以 error 返回。
// 不會修改輸入，重複驗證相同輸入得到相同結果。
func ValidateRecipeAnalysis(raw json.RawMessage) (*RecipeAnalysis, []*common.ValidationError, error) {
	var r rawAnalysis
	if err := decodeObject(raw, &r); err != nil {
		return nil, nil, common.NewFieldError("recipe analysis", "", err.Error())
	}

	switch {
	case r.Ingredients == nil:
		return nil, nil, missingKey("recipe analysis", "ingredients")
	case isMissing(r.Servings):
		return nil, nil, missingKey("recipe analysis", "servings")
	case r.MealType == nil:
		return nil, nil, missingKey("recipe analysis", "meal_type")
	case r.PortionSize == nil:
		return nil, nil, missingKey("recipe analysis", "portion_size")
	case isMissing(r.CaloriesPerServing):
		return nil, nil, missingKey("recipe analysis", "calories_per_serving")
	}

	servings, err := parseCount(r.Servings)
	if err != nil {
		return nil, nil, common.NewFieldError("recipe analysis", "servings", err.Error())
	}
	calories, err := parseNumber(r.CaloriesPerServing)
	if err != nil {
		return nil, nil, common.NewFieldError("recipe analysis", "calories_per_serving", err.Error())
	}
	if calories < 0 {
		return nil, nil, common.NewFieldError("recipe analysis", "calories_per_serving", "must not be negative")
	}

	ingredients, issues := validateIngredients(*r.Ingredients, "ingredients")
	if len(ingredients) == 0 {
		return nil, issues, common.NewFieldError("recipe analysis", "ingredients", "no valid ingredients")
	}

	analysis := &RecipeAnalysis{
		Ingredients:        ingredients,
		Servings:           servings,
		MealType:           strings.ToLower(strings.TrimSpace(*r.MealType)),
		PortionSize:        strings.TrimSpace(*r.PortionSize),
		CaloriesPerServing: calories,
	}
	if err := validate.Struct(analysis); err != nil {
		return nil, issues, common.NewFieldError("recipe analysis", "", err.Error())
	}
	return analysis, issues, nil
}

// ValidateScaledRecipe 驗證完整的縮放結果
func ValidateScaledRecipe(raw json.RawMessage) (*ScaledRecipe, []*common.ValidationError, error) {
	var r rawScaled
	if err := decodeObject(raw, &r); err != nil {
		return nil, nil, common.NewFieldError("scaled recipe", "", err.Error())
	}
	if r.ScaledIngredients == nil {
		return nil, nil, missingKey("scaled recipe", "scaled_ingredients")
	}

	plan, issues, err := validatePurchasePlan(r.rawPurchasePlan, "scaled recipe")
	if err != nil {
		return nil, issues, err
	}

	scaled, ingIssues := validateIngredients(*r.ScaledIngredients, "scaled_ingredients")
	issues = append(issues, ingIssues...)

	result := &ScaledRecipe{
		ScaledIngredients: scaled,
		ShoppingList:      plan.ShoppingList,
		StorageTips:       plan.StorageTips,
		EstimatedCost:     plan.EstimatedCost,
	}
	if err := validate.Struct(result); err != nil {
		return nil, issues, common.NewFieldError("scaled recipe", "", err.Error())
	}
	return result, issues, nil
}

// ValidatePurchasePlan 驗證只含採購清單、保存建議與估價的回覆
func ValidatePurchasePlan(raw json.RawMessage) (*PurchasePlan, []*common.ValidationError, error) {
	var r rawPurchasePlan
	if err := decodeObject(raw, &r); err != nil {
		return nil, nil, common.NewFieldError("purchase plan", "", err.Error())
	}
	return validatePurchasePlan(r, "purchase plan")
}

func validatePurchasePlan(r rawPurchasePlan, input string) (*PurchasePlan, []*common.ValidationError, error) {
	switch {
	case r.ShoppingList == nil:
		return nil, nil, missingKey(input, "shopping_list")
	case r.StorageTips == nil:
		return nil, nil, missingKey(input, "storage_tips")
	case isMissing(r.EstimatedCost):
		return nil, nil, missingKey(input, "estimated_cost")
	}

	cost, err := parseNumber(r.EstimatedCost)
	if err != nil {
		return nil, nil, common.NewFieldError(input, "estimated_cost", err.Error())
	}
	if cost < 0 {
		return nil, nil, common.NewFieldError(input, "estimated_cost", "must not be negative")
	}

	var issues []*common.ValidationError
	items := make([]ShoppingItem, 0, len(*r.ShoppingList))
	for i, rawItem := range *r.ShoppingList {
		ing, err := validateIngredient(rawItem, fmt.Sprintf("shopping_list[%d]", i))
		if err != nil {
			issues = append(issues, asValidationError(err))
			continue
		}
		items = append(items, ShoppingItem{Name: ing.Name, Amount: ing.Amount, Unit: ing.Unit, Notes: ing.Notes})
	}

	tips := make(map[string]string, len(*r.StorageTips))
	for key, value := range *r.StorageTips {
		name := strings.TrimSpace(key)
		if name == "" {
			issues = append(issues, common.NewFieldError("storage_tips", "", "empty ingredient key"))
			continue
		}
		var tip string
		if err := json.Unmarshal(value, &tip); err != nil || isMissing(value) {
			issues = append(issues, common.NewFieldError(fmt.Sprintf("storage_tips (%s)", name), "", "tip must be a string"))
			continue
		}
		tips[name] = tip
	}

	return &PurchasePlan{
		ShoppingList:  items,
		StorageTips:   tips,
		EstimatedCost: cost,
	}, issues, nil
}

func validateIngredients(raws []json.RawMessage, field string) ([]Ingredient, []*common.ValidationError) {
	var issues []*common.ValidationError
	out := make([]Ingredient, 0, len(raws))
	for i, raw := range raws {
		ing, err := validateIngredient(raw, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			issues = append(issues, asValidationError(err))
			continue
		}
		out = append(out, ing)
	}
	return out, issues
}

// NormalizeCategory 統一分類名稱，未知分類視為未指定
func NormalizeCategory(c string) Category {
	switch cat := Category(strings.ToLower(strings.TrimSpace(c))); cat {
	case CategoryProduce, CategoryDairy, CategoryMeat, CategoryPantry, CategorySpices:
		return cat
	case "spice":
		return CategorySpices
	}
	return ""
}

// ParseAmount 解析數量：JSON 數字、數字字串或簡單分數（"1/2"、"1 1/2"）。
// 範圍（"2-3"）與文字（"a pinch"）以及非正數都會被拒絕。
func ParseAmount(raw json.RawMessage) (float64, error) {
	if isMissing(raw) {
		return 0, fmt.Errorf("is required")
	}

	var v float64
	var s string
	switch {
	case json.Unmarshal(raw, &v) == nil:
	case json.Unmarshal(raw, &s) == nil:
		parsed, err := parseAmountString(s)
		if err != nil {
			return 0, err
		}
		v = parsed
	default:
		return 0, fmt.Errorf("must be a number, got %s", common.Truncate(string(raw), 40))
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", FormatAmount(v))
	}
	return v, nil
}

var unicodeFractions = map[string]string{
	"½": " 1/2", "⅓": " 1/3", "⅔": " 2/3", "¼": " 1/4", "¾": " 3/4", "⅛": " 1/8",
}

func parseAmountString(s string) (float64, error) {
	text := strings.TrimSpace(s)
	for sym, frac := range unicodeFractions {
		text = strings.ReplaceAll(text, sym, frac)
	}
	fields := strings.Fields(text)

	switch len(fields) {
	case 1:
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return v, nil
		}
		if v, ok := parseFraction(fields[0]); ok {
			return v, nil
		}
	case 2:
		whole, err := strconv.ParseUint(fields[0], 10, 32)
		if frac, ok := parseFraction(fields[1]); err == nil && ok && frac < 1 {
			return float64(whole) + frac, nil
		}
	}
	return 0, fmt.Errorf("must be numeric, got %q", s)
}

func parseFraction(s string) (float64, bool) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseUint(den, 10, 32)
	if err != nil || d == 0 {
		return 0, false
	}
	return float64(n) / float64(d), true
}

// parseNumber 接受 JSON 數字或數字字串（可帶 "$" 與千分位逗號）
func parseNumber(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		cleaned := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", "")
		if v, err := strconv.ParseFloat(cleaned, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("must be a number, got %s", common.Truncate(string(raw), 40))
}

// parseCount 正整數，接受 4 或 4.0
func parseCount(raw json.RawMessage) (int, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("must be a number, got %s", common.Truncate(string(raw), 40))
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("must be a whole number, got %s", FormatAmount(v))
	}
	if v <= 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("must be positive, got %s", FormatAmount(v))
	}
	return int(v), nil
}

func decodeObject(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	return json.Unmarshal(trimmed, v)
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func missingKey(input, key string) *common.ValidationError {
	return common.NewFieldError(input, key, "required key is missing")
}

func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

func asValidationError(err error) *common.ValidationError {
	if ve, ok := err.(*common.ValidationError); ok {
		return ve
	}
	return common.NewFieldError("", "", err.Error())
}
