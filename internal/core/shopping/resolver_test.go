package shopping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/metrics"
	"recipe-scaler/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	session *fakeSession
	openErr error
	opened  int32
}

func (b *fakeBrowser) Open(ctx context.Context) (Session, error) {
	atomic.AddInt32(&b.opened, 1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.session, nil
}

type fakeSession struct {
	mu       sync.Mutex
	results  map[string][]Listing
	errs     map[string]error
	queries  []string
	closed   int32
	block    chan struct{}
	searched chan struct{}
}

func (s *fakeSession) Search(ctx context.Context, query string) ([]Listing, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.searched != nil {
		s.searched <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.results[query], nil
}

func (s *fakeSession) Close() error {
	atomic.AddInt32(&s.closed, 1)
	return nil
}

func testIngredients() []recipe.Ingredient {
	return []recipe.Ingredient{
		{Name: "rice", Amount: 3.5, Unit: "cup", Category: recipe.CategoryPantry},
		{Name: "onion", Amount: 2, Unit: "whole", Category: recipe.CategoryProduce},
		{Name: "sour cream", Amount: 1, Unit: "cup", Category: recipe.CategoryDairy},
		{Name: "saffron", Amount: 0.5, Unit: "tsp", Category: recipe.CategorySpices},
	}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		results: map[string][]Listing{
			"rice": {
				{Name: "Paper Plates, 100 Count", URL: "https://shop.test/ip/plates", Price: "$4.99"},
				{Name: "Great Value Long Grain Rice, 2 lb", URL: "https://shop.test/ip/rice", Price: "$1.42"},
			},
			"fresh onion": {
				{Name: "Onion Seeds Garden Pack", URL: "https://shop.test/ip/seeds", Price: "$2.00"},
			},
			"dairy sour cream": {
				{Name: "Daisy Sour Cream, 16 oz"},
			},
		},
		errs: map[string]error{
			"saffron spice": common.ResolutionTimeout("resolve", "saffron spice", errors.New("no tiles")),
		},
	}
}

func TestResolveAllOutcomes(t *testing.T) {
	session := newFakeSession()
	browser := &fakeBrowser{session: session}
	resolver := NewResolver(browser, config.RetailConfig{Workers: 3}, metrics.New())

	var calls int32
	var maxDone int32
	matches, err := resolver.ResolveAll(context.Background(), testIngredients(), func(done, total int, match recipe.ProductMatch) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 4, total)
		for {
			cur := atomic.LoadInt32(&maxDone)
			if int32(done) <= cur || atomic.CompareAndSwapInt32(&maxDone, cur, int32(done)) {
				break
			}
		}
	})
	require.NoError(t, err)
	require.Len(t, matches, 4)

	assert.Equal(t, int32(1), atomic.LoadInt32(&browser.opened))
	assert.Equal(t, int32(1), atomic.LoadInt32(&session.closed))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(4), atomic.LoadInt32(&maxDone))

	// 順序與輸入一致
	for i, ing := range testIngredients() {
		assert.Equal(t, ing, matches[i].Ingredient)
	}

	assert.Equal(t, recipe.Product{
		Name:           "Great Value Long Grain Rice, 2 lb",
		URL:            "https://shop.test/ip/rice",
		Price:          "$1.42",
		QuantityNeeded: "3.5 cup",
	}, matches[0].Product)

	assert.Equal(t, recipe.NameNotFound, matches[1].Product.Name)
	assert.Equal(t, recipe.URLNotFound, matches[1].Product.URL)
	assert.Equal(t, recipe.PriceNotFound, matches[1].Product.Price)

	assert.Equal(t, "Daisy Sour Cream, 16 oz", matches[2].Product.Name)
	assert.Equal(t, recipe.URLNotFound, matches[2].Product.URL)
	assert.Equal(t, recipe.PriceNotFound, matches[2].Product.Price)
	assert.True(t, matches[2].Product.Found())

	assert.Equal(t, recipe.SearchFailed, matches[3].Product.Name)
	assert.False(t, matches[3].Product.Found())

	assert.ElementsMatch(t, []string{"rice", "fresh onion", "dairy sour cream", "saffron spice"}, session.queries)
}

func TestResolveAllOpenFailure(t *testing.T) {
	browser := &fakeBrowser{openErr: errors.New("browser unavailable")}
	resolver := NewResolver(browser, config.RetailConfig{Workers: 2}, nil)

	matches, err := resolver.ResolveAll(context.Background(), testIngredients(), nil)
	require.NoError(t, err)
	require.Len(t, matches, 4)
	for _, m := range matches {
		assert.Equal(t, recipe.SearchFailed, m.Product.Name)
		assert.Equal(t, m.Ingredient.Quantity(), m.Product.QuantityNeeded)
	}
}

func TestResolveAllEmpty(t *testing.T) {
	browser := &fakeBrowser{session: newFakeSession()}
	resolver := NewResolver(browser, config.RetailConfig{}, nil)

	matches, err := resolver.ResolveAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, int32(0), atomic.LoadInt32(&browser.opened))
}

func TestResolveAllCanceled(t *testing.T) {
	session := newFakeSession()
	session.block = make(chan struct{})
	session.searched = make(chan struct{}, 4)
	browser := &fakeBrowser{session: session}
	resolver := NewResolver(browser, config.RetailConfig{Workers: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-session.searched
		cancel()
	}()

	matches, err := resolver.ResolveAll(ctx, testIngredients(), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, matches, 4)
	for _, m := range matches {
		assert.Equal(t, recipe.SearchFailed, m.Product.Name)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&session.closed))
}

func TestResolveAllRequestDelay(t *testing.T) {
	session := newFakeSession()
	browser := &fakeBrowser{session: session}
	resolver := NewResolver(browser, config.RetailConfig{Workers: 4, RequestDelay: 30 * time.Millisecond}, nil)

	start := time.Now()
	_, err := resolver.ResolveAll(context.Background(), testIngredients(), nil)
	require.NoError(t, err)
	// 第一次搜尋立即開始，其後三次各間隔 delay
	assert.GreaterOrEqual(t, time.Since(start), 85*time.Millisecond)
}

func TestWorkQueueStatus(t *testing.T) {
	q := newWorkQueue(3, 10)
	assert.Equal(t, 3, q.workers)
	assert.Equal(t, 3, q.status().QueueLength)

	<-q.jobs
	assert.Equal(t, 1, q.incrementProcessed())
	status := q.status()
	assert.Equal(t, Status{QueueLength: 2, ProcessedCount: 1, Total: 3, Workers: 3}, status)

	assert.Equal(t, 1, newWorkQueue(0, 0).workers)
}
