package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCustomErrorMatchesByCode(t *testing.T) {
	err := OracleUnavailable("normalize", "https://example.com/soup", errors.New("dial tcp: timeout"))
	wrapped := fmt.Errorf("pipeline: %w", err)

	assert.ErrorIs(t, wrapped, ErrOracleUnavailable)
	assert.NotErrorIs(t, wrapped, ErrMalformedResponse)
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(wrapped))
	assert.Equal(t, "normalize: ORACLE_UNAVAILABLE (https://example.com/soup): inference oracle unavailable: dial tcp: timeout", err.Error())
}

func TestToErrorResponse(t *testing.T) {
	err := MalformedResponse("scale", "text", "missing shopping_list", errors.New("raw reply"))

	resp := ToErrorResponse(err, false)
	assert.Equal(t, ErrCodeMalformedResponse, resp.Code)
	assert.Equal(t, "missing shopping_list", resp.Message)
	assert.Equal(t, "scale", resp.Stage)
	assert.Equal(t, "text", resp.Input)
	assert.Empty(t, resp.Details)

	assert.Equal(t, "raw reply", ToErrorResponse(err, true).Details)

	plain := ToErrorResponse(errors.New("boom"), true)
	assert.Equal(t, ErrCodeInternalError, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestValidationError(t *testing.T) {
	err := NewFieldError("ingredients[2] (salt)", "amount", "must be positive")

	assert.Equal(t, "ingredients[2] (salt): amount: must be positive", err.Error())
	assert.Equal(t, "must be positive", err.Message())
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, IsValidationError(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	resp := ToErrorResponse(err, false)
	assert.Equal(t, ErrCodeValidation, resp.Code)
	assert.Equal(t, "ingredients[2] (salt)", resp.Input)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: `{"servings": 4}`, want: `{"servings": 4}`},
		{name: "fenced", content: "```json\n{\"servings\": 4}\n```", want: `{"servings": 4}`},
		{name: "unquoted keys", content: `Here you go: {servings: 4, meal_type: "Dinner"}`, want: `{"servings": 4,"meal_type": "Dinner"}`},
		{name: "no object", content: "sorry, I cannot help", wantErr: true},
		{name: "broken", content: `{"servings": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParseJSONBytes(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, ParseJSONBytes([]byte(`{"name":"rice","amount":1.5}`), &v))
	assert.Equal(t, "rice", v["name"])
	assert.Equal(t, json.Number("1.5"), v["amount"])

	assert.Error(t, ParseJSONBytes([]byte(`{"name":"rice"} {"name":"beans"}`), &v))
}

func TestFilterFieldsDropsSecrets(t *testing.T) {
	fields := filterFields([]zap.Field{
		zap.String("model", "openai/gpt-4o-mini"),
		zap.String("api_key", "sk-secret"),
		zap.String("Authorization", "Bearer sk-secret"),
		zap.String("retail_cookie", "session=abc"),
		zap.String("key_hint", "sk-s...cret"),
	})

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"model", "key_hint"}, keys)
}

func TestTruncateAndMask(t *testing.T) {
	assert.Equal(t, "short", Truncate("  short  ", 10))
	assert.Equal(t, "番茄炒...", Truncate("番茄炒蛋飯", 3))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "sk-t...7890", MaskSecret("sk-test-1234567890"))
}
