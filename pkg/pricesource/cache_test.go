package pricesource_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
	"github.com/ogulcanaydogan/fare-guardian/pkg/pricesource"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]model.FlightPrice
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]model.FlightPrice)}
}

func (c *memCache) Get(_ context.Context, key string) ([]model.FlightPrice, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	p, ok := c.entries[key]
	return p, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, prices []model.FlightPrice, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = prices
	return nil
}

func onePrice() []model.FlightPrice {
	return []model.FlightPrice{{Date: "2026-02-03", PriceTotal: decimal.NewFromInt(650), CheapestOfWindow: true}}
}

func TestCachedSource_HitAndMiss(t *testing.T) {
	inner := &stubSource{name: "calendar", result: &pricesource.SearchResult{Prices: onePrice()}}
	cache := newMemCache()
	src := pricesource.NewCachedSource(inner, cache, time.Minute, testLogger())

	first, err := src.SearchDeals(context.Background(), sclPuj())
	require.NoError(t, err)
	second, err := src.SearchDeals(context.Background(), sclPuj())
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Prices, second.Prices)
	assert.Contains(t, cache.entries, "fares:calendar:SCL:PUJ:2026-02:ADT2CHD1INF1:USD")
}

func TestCachedSource_SkipsPlaceholderAndEmpty(t *testing.T) {
	for name, result := range map[string]*pricesource.SearchResult{
		"placeholder": {Prices: onePrice(), Placeholder: true},
		"empty":       {},
	} {
		t.Run(name, func(t *testing.T) {
			inner := &stubSource{name: "calendar", result: result}
			cache := newMemCache()
			src := pricesource.NewCachedSource(inner, cache, time.Minute, testLogger())

			for i := 0; i < 2; i++ {
				res, err := src.SearchDeals(context.Background(), sclPuj())
				require.NoError(t, err)
				assert.Equal(t, result.Placeholder, res.Placeholder)
			}
			assert.Equal(t, 2, inner.calls)
			assert.Empty(t, cache.entries)
		})
	}
}

func TestCachedSource_ErrorsPassThrough(t *testing.T) {
	inner := &stubSource{name: "calendar", err: model.ErrSourceUnavailable}
	cache := newMemCache()
	cache.failGet = true
	src := pricesource.NewCachedSource(inner, cache, time.Minute, testLogger())

	_, err := src.SearchDeals(context.Background(), sclPuj())
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("FG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FG_TEST_REDIS_ADDR not set")
	}

	cache, err := pricesource.NewRedisCache(addr, "", 0)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	key := "fares:test:" + time.Now().Format(time.RFC3339Nano)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, key, onePrice(), time.Minute))
	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, decimal.NewFromInt(650).Equal(got[0].PriceTotal))
}
