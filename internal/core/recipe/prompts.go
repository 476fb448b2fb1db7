package recipe

import (
	"fmt"
	"strings"
)

const systemPrompt = `You convert recipes into structured grocery data. Reply with exactly one JSON object and nothing else. Use JSON numbers for every numeric field. Never use ranges or words such as "a pinch" for amounts.`

const normalizePrompt = `Analyze this recipe and extract its ingredients in a grocery-store friendly format.

For each ingredient provide:
- name: the product as it would be searched for in a grocery store (e.g. "garlic bulb" instead of "garlic cloves")
- amount: a positive number
- unit: the recipe unit ("cup", "tbsp", "tsp", "oz", "lb", "g", "whole", "clove", "bunch", "head"), or "" for whole items
- notes: specifics such as "fresh", "organic", "canned", or ""
- category: one of "produce", "dairy", "meat", "pantry", "spices"

Return a JSON object with these keys:
- ingredients: array of ingredient objects in the order they appear
- servings: whole number of servings the recipe makes
- meal_type: one of "breakfast", "lunch", "dinner"
- portion_size: short description of one serving
- calories_per_serving: number

Ignore instructions, advertisements, comments and navigation text.

Recipe text:
%s`

const purchasePlanPrompt = `Plan the grocery purchase for this recipe scaled from %d servings to %d meals (scale factor %s).

Original recipe:
%s

Scaled ingredient amounts (already calculated, do not change them):
%s

Provide:
1. A shopping list rounded up to practical purchase amounts: whole packages, bulk packaging sizes and common store quantities (e.g. 3.5 cloves of garlic becomes 1 bulb). Merge ingredients that are bought as one product.
2. Storage advice for each shopping list item, considering shelf life.
3. The estimated total cost in USD.

Return a JSON object with these keys:
- shopping_list: array of objects with name, amount (number), unit, notes
- storage_tips: object mapping each shopping list item name to a storage tip string
- estimated_cost: number`

const scaledRecipePrompt = `Scale this recipe from %d servings to %d meals (multiply every amount by %s).

Current recipe data:
%s

Provide:
1. Scaled ingredients with the adjusted amounts, keeping each unit unchanged and without rounding
2. A shopping list optimized for bulk buying, rounded to practical purchase amounts and common store quantities
3. Storage recommendations for the bulk ingredients, considering shelf life
4. The estimated total cost in USD

Return a JSON object with these keys:
- scaled_ingredients: array of objects with name, amount (number), unit, notes, category
- shopping_list: array of objects with name, amount (number), unit, notes
- storage_tips: object mapping each shopping list item name to a storage tip string
- estimated_cost: number`

func buildNormalizePrompt(text string) string {
	return fmt.Sprintf(normalizePrompt, strings.TrimSpace(text))
}

func buildPurchasePlanPrompt(analysisJSON, scaledJSON string, servings, target int, factor float64) string {
	return fmt.Sprintf(purchasePlanPrompt, servings, target, FormatAmount(factor), analysisJSON, scaledJSON)
}

func buildScaledRecipePrompt(analysisJSON string, servings, target int, factor float64) string {
	return fmt.Sprintf(scaledRecipePrompt, servings, target, FormatAmount(factor), analysisJSON)
}
