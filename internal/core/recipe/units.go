package recipe

import (
	"fmt"
	"math"
	"strings"
)

type unitKind string

const (
	unitKindMass   unitKind = "mass"
	unitKindVolume unitKind = "volume"
)

type unitDef struct {
	kind       unitKind
	toBaseUnit float64
}

// mass 以 g 為基準，volume 以 ml 為基準
var unitTable = map[string]unitDef{
	"mg":     {kind: unitKindMass, toBaseUnit: 0.001},
	"g":      {kind: unitKindMass, toBaseUnit: 1},
	"kg":     {kind: unitKindMass, toBaseUnit: 1000},
	"oz":     {kind: unitKindMass, toBaseUnit: 28.349523125},
	"lb":     {kind: unitKindMass, toBaseUnit: 453.59237},
	"ml":     {kind: unitKindVolume, toBaseUnit: 1},
	"l":      {kind: unitKindVolume, toBaseUnit: 1000},
	"tsp":    {kind: unitKindVolume, toBaseUnit: 4.92892159375},
	"tbsp":   {kind: unitKindVolume, toBaseUnit: 14.78676478125},
	"cup":    {kind: unitKindVolume, toBaseUnit: 236.5882365},
	"fl oz":  {kind: unitKindVolume, toBaseUnit: 29.5735295625},
	"pint":   {kind: unitKindVolume, toBaseUnit: 473.176473},
	"quart":  {kind: unitKindVolume, toBaseUnit: 946.352946},
	"gallon": {kind: unitKindVolume, toBaseUnit: 3785.411784},
}

var unitAliases = map[string]string{
	"milligram": "mg", "milligrams": "mg",
	"gram": "g", "grams": "g", "gr": "g",
	"kilogram": "kg", "kilograms": "kg", "kgs": "kg",
	"ounce": "oz", "ounces": "oz",
	"pound": "lb", "pounds": "lb", "lbs": "lb",
	"milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"teaspoon": "tsp", "teaspoons": "tsp", "tsps": "tsp",
	"tablespoon": "tbsp", "tablespoons": "tbsp", "tbs": "tbsp", "tbsps": "tbsp", "tbl": "tbsp",
	"cups": "cup",
	"fl-oz": "fl oz", "floz": "fl oz", "fluid ounce": "fl oz", "fluid ounces": "fl oz", "fl. oz": "fl oz",
	"pints": "pint", "pt": "pint",
	"quarts": "quart", "qt": "quart",
	"gallons": "gallon", "gal": "gallon",
	"cloves": "clove", "bulbs": "bulb", "heads": "head", "bunches": "bunch",
	"cans": "can", "bottles": "bottle", "bags": "bag", "packages": "package", "pkg": "package",
	"pieces": "piece", "pcs": "piece", "counts": "count", "each": "count", "ea": "count",
}

// NormalizeUnit 統一單位寫法，例如 "Tablespoons" 轉為 "tbsp"；未知單位只做小寫與去空白
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	u = strings.Join(strings.Fields(u), " ")
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

func resolveUnit(unit string) (unitDef, bool) {
	def, ok := unitTable[NormalizeUnit(unit)]
	return def, ok
}

// Convertible 兩個單位是否可以互相換算
func Convertible(from, to string) bool {
	f, ok := resolveUnit(from)
	if !ok {
		return NormalizeUnit(from) == NormalizeUnit(to)
	}
	t, ok := resolveUnit(to)
	return ok && f.kind == t.kind
}

// ConvertAmount 同類單位換算；不同類或未知單位只在單位相同時成立
func ConvertAmount(value float64, fromUnit, toUnit string) (float64, error) {
	if NormalizeUnit(fromUnit) == NormalizeUnit(toUnit) {
		return value, nil
	}
	from, ok := resolveUnit(fromUnit)
	if !ok {
		return 0, fmt.Errorf("unsupported unit %q", fromUnit)
	}
	to, ok := resolveUnit(toUnit)
	if !ok {
		return 0, fmt.Errorf("unsupported unit %q", toUnit)
	}
	if from.kind != to.kind {
		return 0, fmt.Errorf("cannot convert %s to %s", from.kind, to.kind)
	}
	return value * from.toBaseUnit / to.toBaseUnit, nil
}

// ScaleIngredients 返回新切片，每個數量乘以 factor，單位不變也不取整
func ScaleIngredients(ingredients []Ingredient, factor float64) []Ingredient {
	out := make([]Ingredient, len(ingredients))
	for i, ing := range ingredients {
		out[i] = ing
		out[i].Amount = ing.Amount * factor
	}
	return out
}

// Shortfall 採購清單不足以涵蓋縮放後的用量
type Shortfall struct {
	Ingredient string
	Needed     float64
	Purchased  float64
	Unit       string
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s: need %s, shopping list covers %s",
		s.Ingredient, FormatQuantity(s.Needed, s.Unit), FormatQuantity(s.Purchased, s.Unit))
}

// CheckCoverage 以單位表比對採購清單是否涵蓋縮放用量。
// 只比較同類單位；找不到可比較項目的食材不列入結果。
func CheckCoverage(scaled []Ingredient, list []ShoppingItem) []Shortfall {
	const epsilon = 1e-6

	var out []Shortfall
	for _, ing := range scaled {
		purchased := 0.0
		comparable := false
		for _, item := range list {
			if !sameIngredient(ing.Name, item.Name) {
				continue
			}
			v, err := ConvertAmount(item.Amount, item.Unit, ing.Unit)
			if err != nil {
				continue
			}
			comparable = true
			purchased += v
		}
		if comparable && purchased+epsilon < ing.Amount {
			out = append(out, Shortfall{
				Ingredient: ing.Name,
				Needed:     ing.Amount,
				Purchased:  math.Round(purchased*1000) / 1000,
				Unit:       ing.Unit,
			})
		}
	}
	return out
}

// sameIngredient 名稱互相包含即視為同一食材
func sameIngredient(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
