package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Stage   string `json:"stage,omitempty"`   // 失敗的管線階段
	Input   string `json:"input,omitempty"`   // 造成失敗的輸入識別
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Stage   string // 管線階段（fetch、normalize、scale、resolve、persist）
	Input   string // 輸入識別（食譜來源、食材名稱）
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	var sb strings.Builder
	if e.Stage != "" {
		sb.WriteString(e.Stage)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Code)
	if e.Input != "" {
		fmt.Fprintf(&sb, " (%s)", e.Input)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap 返回原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is 以錯誤代碼比對，讓 errors.Is 可以對照預定義錯誤
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// withContext 複製預定義錯誤並填入階段、輸入與原因
func withContext(base *CustomError, stage, input, message string, err error) *CustomError {
	if message == "" {
		message = base.Message
	}
	return &CustomError{
		Code:    base.Code,
		Message: message,
		Stage:   stage,
		Input:   input,
		Err:     err,
		Status:  base.Status,
	}
}

// 預定義錯誤代碼
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"        // 400
	ErrCodeValidation           = "VALIDATION_ERROR"       // 400
	ErrCodeInvalidScalingFactor = "INVALID_SCALING_FACTOR" // 400
	ErrCodeNotFound             = "NOT_FOUND"              // 404
	ErrCodeTooManyRequests      = "TOO_MANY_REQUESTS"      // 429
	ErrCodeInternalError        = "INTERNAL_ERROR"         // 500
	ErrCodeMalformedResponse    = "MALFORMED_RESPONSE"     // 502
	ErrCodeSourceUnavailable    = "SOURCE_UNAVAILABLE"     // 502
	ErrCodeOracleUnavailable    = "ORACLE_UNAVAILABLE"     // 503
	ErrCodeResolutionTimeout    = "RESOLUTION_TIMEOUT"     // 504
	ErrCodePersistenceFailure   = "PERSISTENCE_FAILURE"    // 500
)

// 預定義錯誤
var (
	ErrInvalidRequest       = NewError(ErrCodeInvalidRequest, "invalid request", http.StatusBadRequest, nil)
	ErrValidation           = NewError(ErrCodeValidation, "validation failed", http.StatusBadRequest, nil)
	ErrInvalidScalingFactor = NewError(ErrCodeInvalidScalingFactor, "servings and target meals must be positive", http.StatusBadRequest, nil)
	ErrNotFound             = NewError(ErrCodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrTooManyRequests      = NewError(ErrCodeTooManyRequests, "too many requests", http.StatusTooManyRequests, nil)
	ErrInternalError        = NewError(ErrCodeInternalError, "internal error", http.StatusInternalServerError, nil)
	ErrMalformedResponse    = NewError(ErrCodeMalformedResponse, "oracle reply does not match the expected schema", http.StatusBadGateway, nil)
	ErrSourceUnavailable    = NewError(ErrCodeSourceUnavailable, "recipe source could not be fetched", http.StatusBadGateway, nil)
	ErrOracleUnavailable    = NewError(ErrCodeOracleUnavailable, "inference oracle unavailable", http.StatusServiceUnavailable, nil)
	ErrResolutionTimeout    = NewError(ErrCodeResolutionTimeout, "retail listings did not appear in time", http.StatusGatewayTimeout, nil)
	ErrPersistenceFailure   = NewError(ErrCodePersistenceFailure, "result could not be persisted", http.StatusInternalServerError, nil)
)

// OracleUnavailable 推論服務無法完成請求（網路、認證、逾時）
func OracleUnavailable(stage, input string, err error) *CustomError {
	return withContext(ErrOracleUnavailable, stage, input, "", err)
}

// MalformedResponse 推論服務有回覆但內容不符合結構
func MalformedResponse(stage, input, message string, err error) *CustomError {
	return withContext(ErrMalformedResponse, stage, input, message, err)
}

// InvalidScalingFactor 份量或目標餐數不合理
func InvalidScalingFactor(stage, input, message string) *CustomError {
	return withContext(ErrInvalidScalingFactor, stage, input, message, nil)
}

// ResolutionTimeout 零售搜尋在時限內沒有結果
func ResolutionTimeout(stage, input string, err error) *CustomError {
	return withContext(ErrResolutionTimeout, stage, input, "", err)
}

// SourceUnavailable 食譜來源無法取得
func SourceUnavailable(stage, input string, err error) *CustomError {
	return withContext(ErrSourceUnavailable, stage, input, "", err)
}

// PersistenceFailure 結果無法寫入
func PersistenceFailure(stage, input string, err error) *CustomError {
	return withContext(ErrPersistenceFailure, stage, input, "", err)
}

// InvalidRequest 請求本身無效
func InvalidRequest(stage, input string, err error) *CustomError {
	return withContext(ErrInvalidRequest, stage, input, "", err)
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	Input   string // 出錯的紀錄，例如 "ingredients[2] (salt)"
	Field   string // 出錯的欄位
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	switch {
	case e.Input != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Input, e.Field, e.message)
	case e.Input != "":
		return fmt.Sprintf("%s: %s", e.Input, e.message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.message)
	}
	return e.message
}

// Is 讓 errors.Is(err, ErrValidation) 對驗證錯誤成立
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*CustomError)
	return ok && t.Code == ErrCodeValidation
}

// Message 返回不含前綴的錯誤信息
func (e *ValidationError) Message() string {
	return e.message
}

// NewFieldError 創建指向特定紀錄與欄位的驗證錯誤
func NewFieldError(input, field, message string) *ValidationError {
	return &ValidationError{
		Input:   input,
		Field:   field,
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StatusOf 取得錯誤對應的 HTTP 狀態碼
func StatusOf(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) && ce.Status != 0 {
		return ce.Status
	}
	if IsValidationError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ToErrorResponse 將錯誤轉為 API 響應
func ToErrorResponse(err error, debug bool) ErrorResponse {
	resp := ErrorResponse{
		Code:    ErrCodeInternalError,
		Message: err.Error(),
	}

	var ce *CustomError
	var ve *ValidationError
	switch {
	case errors.As(err, &ce):
		resp.Code = ce.Code
		resp.Message = ce.Message
		resp.Stage = ce.Stage
		resp.Input = ce.Input
		if debug && ce.Err != nil {
			resp.Details = ce.Err.Error()
		}
	case errors.As(err, &ve):
		resp.Code = ErrCodeValidation
		resp.Message = ve.Error()
		resp.Input = ve.Input
	}
	return resp
}
