package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"recipe-scaler/internal/core/recipe"
)

// WriteReport 輸出主控台報表
func WriteReport(w io.Writer, doc *Document) error {
	rw := &reportWriter{w: w}

	if a := doc.OriginalRecipe; a != nil {
		rw.line("Original Recipe Information:")
		rw.line("Servings: %d", a.Servings)
		if a.MealType != "" {
			rw.line("Meal Type: %s", a.MealType)
		}
		if a.PortionSize != "" {
			rw.line("Portion Size: %s", a.PortionSize)
		}
		rw.line("Calories per Serving: %s", recipe.FormatAmount(a.CaloriesPerServing))
		rw.line("Ingredients:")
		for _, ing := range a.Ingredients {
			rw.line("- %s", describe(ing.Name, ing.Amount, ing.Unit, ing.Notes))
		}
	}

	if s := doc.ScaledRecipe; s != nil {
		rw.line("")
		rw.line("Scaled Recipe Information:")
		for _, ing := range s.ScaledIngredients {
			rw.line("- %s", describe(ing.Name, ing.Amount, ing.Unit, ing.Notes))
		}

		rw.line("")
		rw.line("Shopping List:")
		for _, item := range s.ShoppingList {
			rw.line("- %s", describe(item.Name, item.Amount, item.Unit, item.Notes))
		}

		rw.line("")
		rw.line("Storage Tips:")
		names := make([]string, 0, len(s.StorageTips))
		for name := range s.StorageTips {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rw.line("- %s: %s", name, s.StorageTips[name])
		}

		rw.line("")
		rw.line("Estimated Total Cost: $%.2f", s.EstimatedCost)
	}

	if len(doc.WalmartProducts) > 0 {
		rw.line("")
		rw.line("Products:")
		for _, m := range doc.WalmartProducts {
			rw.line("")
			rw.line("Item: %s", m.Ingredient.Name)
			rw.line("Quantity Needed: %s", m.Product.QuantityNeeded)
			rw.line("Product: %s", m.Product.Name)
			rw.line("Price: %s", m.Product.Price)
			rw.line("URL: %s", m.Product.URL)
		}
	}

	return rw.err
}

// describe 例如 "1.75 cup rice (long grain)"
func describe(name string, amount float64, unit, notes string) string {
	s := strings.TrimSpace(recipe.FormatQuantity(amount, unit) + " " + name)
	if notes = strings.TrimSpace(notes); notes != "" {
		s += " (" + notes + ")"
	}
	return s
}

// reportWriter 保留第一個寫入錯誤
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) line(format string, args ...interface{}) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format+"\n", args...)
}
