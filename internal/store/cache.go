package store

import (
	"context"
	"sync"
	"time"

	"orbx/internal/domain"
	"orbx/internal/util"
)

// Compile-time interface check.
var _ BarStore = (*CachingBarStore)(nil)

// CachingBarStore memoizes reads from an underlying BarStore. Historical
// bars never change during a run, so cached entries are never invalidated by
// reads; writes pass through and drop the affected keys.
type CachingBarStore struct {
	inner BarStore

	mu     sync.RWMutex
	daily  map[string][]domain.Bar // symbol → full requested range
	minute map[string][]domain.Bar // symbol/date → day's bars
}

// NewCachingBarStore wraps inner with an in-memory read cache.
func NewCachingBarStore(inner BarStore) *CachingBarStore {
	return &CachingBarStore{
		inner:  inner,
		daily:  make(map[string][]domain.Bar),
		minute: make(map[string][]domain.Bar),
	}
}

func dailyKey(symbol string, start, end time.Time) string {
	return symbol + "|" + util.DateKey(start) + "|" + util.DateKey(end)
}

func minuteKey(symbol string, day time.Time) string {
	return symbol + "|" + util.DateKey(day)
}

// ReadDailyBars returns cached daily bars when the same symbol and range
// were read before, delegating to the inner store otherwise.
func (c *CachingBarStore) ReadDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	key := dailyKey(symbol, start, end)

	c.mu.RLock()
	bars, ok := c.daily[key]
	c.mu.RUnlock()
	if ok {
		return bars, nil
	}

	bars, err := c.inner.ReadDailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.daily[key] = bars
	c.mu.Unlock()
	return bars, nil
}

// ReadMinuteBars returns cached intraday bars for a symbol/day when read
// before, delegating to the inner store otherwise.
func (c *CachingBarStore) ReadMinuteBars(ctx context.Context, symbol string, day time.Time) ([]domain.Bar, error) {
	key := minuteKey(symbol, day)

	c.mu.RLock()
	bars, ok := c.minute[key]
	c.mu.RUnlock()
	if ok {
		return bars, nil
	}

	bars, err := c.inner.ReadMinuteBars(ctx, symbol, day)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.minute[key] = bars
	c.mu.Unlock()
	return bars, nil
}

// WriteDailyBars passes through and invalidates the daily cache.
func (c *CachingBarStore) WriteDailyBars(ctx context.Context, bars []domain.Bar) error {
	if err := c.inner.WriteDailyBars(ctx, bars); err != nil {
		return err
	}
	c.mu.Lock()
	c.daily = make(map[string][]domain.Bar)
	c.mu.Unlock()
	return nil
}

// WriteMinuteBars passes through and invalidates the minute cache.
func (c *CachingBarStore) WriteMinuteBars(ctx context.Context, bars []domain.Bar) error {
	if err := c.inner.WriteMinuteBars(ctx, bars); err != nil {
		return err
	}
	c.mu.Lock()
	c.minute = make(map[string][]domain.Bar)
	c.mu.Unlock()
	return nil
}

// ListSymbols delegates to the inner store.
func (c *CachingBarStore) ListSymbols(ctx context.Context) ([]string, error) {
	return c.inner.ListSymbols(ctx)
}
