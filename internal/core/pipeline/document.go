package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// DefaultOutputPath 預設輸出檔名
const DefaultOutputPath = "shopping_list.json"

// Document 輸出文件，欄位名稱與既有的 shopping_list.json 相容
type Document struct {
	OriginalRecipe  *recipe.RecipeAnalysis `json:"original_recipe"`
	ScaledRecipe    *recipe.ScaledRecipe   `json:"scaled_recipe"`
	WalmartProducts []recipe.ProductMatch  `json:"walmart_products,omitempty"`
}

type rawDocument struct {
	OriginalRecipe  json.RawMessage       `json:"original_recipe"`
	ScaledRecipe    json.RawMessage       `json:"scaled_recipe"`
	WalmartProducts []recipe.ProductMatch `json:"walmart_products"`
}

// EncodeDocument 以兩格縮排輸出
func EncodeDocument(doc *Document) ([]byte, error) {
	if doc == nil || doc.OriginalRecipe == nil || doc.ScaledRecipe == nil {
		return nil, fmt.Errorf("document requires original_recipe and scaled_recipe")
	}
	return common.ToIndentedJSON(doc)
}

// DecodeDocument 解析並驗證文件內容，載入的資料與推論回覆使用相同的驗證
func DecodeDocument(data []byte) (*Document, error) {
	var raw rawDocument
	if err := common.ParseJSONBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if len(raw.OriginalRecipe) == 0 {
		return nil, fmt.Errorf("document is missing original_recipe")
	}
	if len(raw.ScaledRecipe) == 0 {
		return nil, fmt.Errorf("document is missing scaled_recipe")
	}

	analysis, issues, err := recipe.ValidateRecipeAnalysis(raw.OriginalRecipe)
	if err != nil {
		return nil, fmt.Errorf("invalid original_recipe: %w", err)
	}
	logDropped("original_recipe", issues)

	scaled, issues, err := recipe.ValidateScaledRecipe(raw.ScaledRecipe)
	if err != nil {
		return nil, fmt.Errorf("invalid scaled_recipe: %w", err)
	}
	logDropped("scaled_recipe", issues)

	return &Document{
		OriginalRecipe:  analysis,
		ScaledRecipe:    scaled,
		WalmartProducts: raw.WalmartProducts,
	}, nil
}

// SaveDocument 寫入檔案
func SaveDocument(path string, doc *Document) error {
	if path == "" {
		path = DefaultOutputPath
	}
	data, err := EncodeDocument(doc)
	if err != nil {
		return common.PersistenceFailure(ai.StagePersist.String(), path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return common.PersistenceFailure(ai.StagePersist.String(), path, err)
	}

	common.LogInfo("結果已保存", zap.String("path", path))
	return nil
}

// LoadDocument 讀取並驗證先前保存的文件
func LoadDocument(path string) (*Document, error) {
	if path == "" {
		path = DefaultOutputPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.PersistenceFailure(ai.StagePersist.String(), path, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, common.PersistenceFailure(ai.StagePersist.String(), path, err)
	}
	return doc, nil
}

func logDropped(field string, issues []*common.ValidationError) {
	for _, issue := range issues {
		common.LogWarn("文件中的紀錄驗證失敗，已略過",
			zap.String("field", field),
			zap.String("issue", issue.Error()),
		)
	}
}
