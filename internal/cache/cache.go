package cache

import (
	"context"
	"sync"
	"time"

	"restopos/backend/internal/domain"
)

// SummaryCache holds saved daily summaries keyed by business date.
type SummaryCache interface {
	Get(ctx context.Context, businessDate string) (*domain.DailySummary, bool, error)
	Set(ctx context.Context, summary domain.DailySummary, ttl time.Duration) error
	// Delete drops the entry for a business date that is about to be re-saved.
	Delete(ctx context.Context, businessDate string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Delete(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	summary   domain.DailySummary
	expiresAt time.Time
}

// MemorySummaryCache is the in-process fallback used when Redis is not configured.
type MemorySummaryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemorySummaryCache) Get(_ context.Context, businessDate string) (*domain.DailySummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[businessDate]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, businessDate)
		return nil, false, nil
	}
	summary := entry.summary
	return &summary, true, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, summary domain.DailySummary, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{summary: summary}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[summary.BusinessDate] = entry
	return nil
}

func (c *MemorySummaryCache) Delete(_ context.Context, businessDate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, businessDate)
	return nil
}
