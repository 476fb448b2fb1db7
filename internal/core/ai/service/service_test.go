package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"recipe-scaler/internal/core/ai"
	"recipe-scaler/internal/core/ai/cache"
	"recipe-scaler/internal/core/ai/provider"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	content string
	replies []string // 依序返回，用完後返回 content
	block   bool     // 阻塞到 ctx 結束
	err     error
	calls   int
	last    *provider.Request
}

func (f *fakeProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) > 0 {
		content := f.replies[0]
		f.replies = f.replies[1:]
		return &provider.Response{Content: content}, nil
	}
	return &provider.Response{Content: f.content}, nil
}

func (f *fakeProvider) GetModel() string { return "fake-model" }
func (f *fakeProvider) Close() error     { return nil }

func testConfig() config.OracleConfig {
	return config.OracleConfig{
		MaxTokens:         512,
		Temperature:       0.1,
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		Burst:             10,
	}
}

func TestAskExtractsJSON(t *testing.T) {
	p := &fakeProvider{content: "Here you go:\n```json\n{\"servings\": 4}\n```"}
	s := NewService(p, nil, nil, testConfig())

	raw, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageNormalize, Input: "soup", System: "sys", Prompt: "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"servings": 4}`, string(raw))

	require.NotNil(t, p.last)
	assert.True(t, p.last.JSONMode)
	assert.Equal(t, 512, p.last.MaxTokens)
	require.Len(t, p.last.Messages, 2)
	assert.Equal(t, provider.RoleSystem, p.last.Messages[0].Role)
}

func TestAskMalformedReply(t *testing.T) {
	s := NewService(&fakeProvider{content: "sorry, I cannot help"}, nil, nil, testConfig())

	_, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageScale, Input: "soup", Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedResponse)

	var ce *common.CustomError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "scale", ce.Stage)
	assert.Equal(t, "soup", ce.Input)
}

func TestAskEmptyReplyIsMalformed(t *testing.T) {
	s := NewService(&fakeProvider{err: provider.ErrEmptyResponse}, nil, nil, testConfig())
	_, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageScale, Prompt: "p"})
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
}

func TestAskProviderFailureIsUnavailable(t *testing.T) {
	s := NewService(&fakeProvider{err: errors.New("dial tcp: connection refused")}, nil, nil, testConfig())

	_, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageNormalize, Prompt: "p"})
	assert.ErrorIs(t, err, common.ErrOracleUnavailable)
	assert.False(t, errors.Is(err, common.ErrMalformedResponse))
}

func TestAskUsesCache(t *testing.T) {
	p := &fakeProvider{content: `{"a":1}`}
	store := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Hour})
	defer store.Close()
	s := NewService(p, store, nil, testConfig())

	ctx := context.Background()
	q := ai.Query{Stage: ai.StageNormalize, Prompt: "same prompt"}

	first, err := s.Ask(ctx, q)
	require.NoError(t, err)
	second, err := s.Ask(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, p.calls)

	_, err = s.Ask(ctx, ai.Query{Stage: ai.StageNormalize, Prompt: "other prompt"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestAskDoesNotCacheRejectedReply(t *testing.T) {
	p := &fakeProvider{replies: []string{`{"a":1}`, `{"a":1,"b":2}`}}
	store := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Hour})
	defer store.Close()
	s := NewService(p, store, nil, testConfig())

	ctx := context.Background()
	q := ai.Query{
		Stage:  ai.StageNormalize,
		Prompt: "same prompt",
		Validate: func(raw json.RawMessage) error {
			var v map[string]int
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			if _, ok := v["b"]; !ok {
				return errors.New("b: required key is missing")
			}
			return nil
		},
	}

	// 未通過驗證的回覆仍返回給呼叫者，但不寫入快取
	first, err := s.Ask(ctx, q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(first))

	second, err := s.Ask(ctx, q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(second))
	assert.Equal(t, 2, p.calls)

	third, err := s.Ask(ctx, q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(third))
	assert.Equal(t, 2, p.calls)
}

func TestAskSkipsInvalidCachedReply(t *testing.T) {
	p := &fakeProvider{content: `{"servings":4}`}
	store := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Hour})
	defer store.Close()
	s := NewService(p, store, nil, testConfig())

	ctx := context.Background()
	q := ai.Query{
		Stage:  ai.StageNormalize,
		Prompt: "p",
		Validate: func(raw json.RawMessage) error {
			if string(raw) == `{}` {
				return errors.New("empty")
			}
			return nil
		},
	}
	require.NoError(t, store.Set(ctx, cache.Key("fake-model", q.Stage.String(), q.System+"\n"+q.Prompt), `{}`))

	raw, err := s.Ask(ctx, q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"servings":4}`, string(raw))
	assert.Equal(t, 1, p.calls)
}

func TestNormalizeRetriesAfterMalformedReply(t *testing.T) {
	p := &fakeProvider{replies: []string{
		`{"ingredients":[{"name":"rice","amount":1,"unit":"cup"}],"meal_type":"Dinner","portion_size":"1 bowl","calories_per_serving":200}`,
		`{"ingredients":[{"name":"rice","amount":1,"unit":"cup"}],"servings":4,"meal_type":"Dinner","portion_size":"1 bowl","calories_per_serving":200}`,
	}}
	store := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Hour})
	defer store.Close()
	n := recipe.NewNormalizer(NewService(p, store, nil, testConfig()), nil)

	ctx := context.Background()
	_, _, err := n.Normalize(ctx, "text", "1 cup rice")
	assert.ErrorIs(t, err, common.ErrMalformedResponse)

	analysis, _, err := n.Normalize(ctx, "text", "1 cup rice")
	require.NoError(t, err)
	assert.Equal(t, 4, analysis.Servings)
	assert.Equal(t, 2, p.calls)
}

func TestAskTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := &fakeProvider{block: true}
	s := NewService(p, nil, nil, cfg)

	start := time.Now()
	_, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageNormalize, Input: "soup", Prompt: "p"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOracleUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, p.calls)

	var ce *common.CustomError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "normalize", ce.Stage)
	assert.Equal(t, "soup", ce.Input)
}

func TestAskCanceledContext(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	p := &fakeProvider{content: `{}`}
	s := NewService(p, nil, nil, cfg)

	_, err := s.Ask(context.Background(), ai.Query{Stage: ai.StageScale, Prompt: "1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Ask(ctx, ai.Query{Stage: ai.StageScale, Prompt: "2"})
	assert.ErrorIs(t, err, common.ErrOracleUnavailable)
	assert.Equal(t, 1, p.calls)
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(context.Background(), config.OracleConfig{Provider: config.ProviderOpenRouter})
	assert.Error(t, err)

	p, err := NewProvider(context.Background(), config.OracleConfig{Provider: config.ProviderOpenRouter, APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", p.GetModel())

	_, err = NewProvider(context.Background(), config.OracleConfig{Provider: "nope", APIKey: "k"})
	assert.Error(t, err)
}
