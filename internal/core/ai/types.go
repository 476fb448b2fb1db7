package ai

import "encoding/json"

// Stage 管線階段，用於錯誤歸因與指標標籤
type Stage string

// 管線階段
const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageScale     Stage = "scale"
	StageResolve   Stage = "resolve"
	StagePersist   Stage = "persist"
)

func (s Stage) String() string {
	return string(s)
}

// Query 送往推論服務的一次查詢
type Query struct {
	Stage  Stage  // 發起查詢的階段
	Input  string // 輸入識別，只用於日誌與錯誤
	System string // 系統指示，可為空
	Prompt string // 使用者提示

	// Validate 檢查回覆結構，未通過的回覆不寫入快取，快取中的舊回覆也會被略過
	Validate func(raw json.RawMessage) error
}
