package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/stats"
)

// statsCache memoizes per-owner, per-period statistics. Aggregation is
// a pure read-side computation, so the cache is only invalidated when a
// record enters or leaves approved.
type statsCache struct {
	mu      sync.RWMutex
	entries map[string]stats.Statistics
}

func newStatsCache() *statsCache {
	return &statsCache{entries: make(map[string]stats.Statistics)}
}

func cacheKey(ownerID string, now time.Time) string {
	return fmt.Sprintf("%s|%04d-%02d", ownerID, now.Year(), now.Month())
}

func (c *statsCache) get(key string) (stats.Statistics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *statsCache) put(key string, s stats.Statistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = s
}

// invalidate drops every cached period for the owner
func (c *statsCache) invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := ownerID + "|"
	for key := range c.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Statistics aggregates the owner's approved receipts, serving from the
// per-period cache when possible.
func (s *ReceiptService) Statistics(ctx context.Context, ownerID string, now time.Time, recentLimit int) (stats.Statistics, error) {
	key := cacheKey(ownerID, now)
	if cached, ok := s.statsCache.get(key); ok {
		return cached, nil
	}

	approved, err := s.repo.ListByOwnerAndStatus(ctx, ownerID, entity.StatusApproved)
	if err != nil {
		return stats.Statistics{}, fmt.Errorf("failed to load approved receipts: %w", err)
	}

	computed := stats.ComputeStatistics(approved, now, recentLimit)
	s.statsCache.put(key, computed)

	s.logger.Debug("Statistics computed",
		zap.String("owner_id", ownerID),
		zap.Int("total_count", computed.TotalCount))

	return computed, nil
}

// Export applies the filter across all of the owner's records and
// returns the filtered dataset with recomputed totals.
func (s *ReceiptService) Export(ctx context.Context, ownerID string, filter stats.ExportFilter) (stats.ExportResult, error) {
	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return stats.ExportResult{}, fmt.Errorf("failed to load receipts: %w", err)
	}
	return stats.ComputeExport(records, filter), nil
}

// RenderExport runs Export and hands the dataset to the rendering
// collaborator.
func (s *ReceiptService) RenderExport(ctx context.Context, ownerID string, filter stats.ExportFilter, renderer port.ExportRenderer) ([]byte, error) {
	result, err := s.Export(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	return renderer.Render(ctx, &result, s.registry)
}
