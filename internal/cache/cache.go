package cache

import (
	"context"
	"time"

	"opsledger/backend/internal/domain"
)

// SummaryCache holds dashboard summaries under keys built by SummaryKey, so an
// entry is never served for a ledger state other than the one it describes.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.Summary, bool, error)
	Set(ctx context.Context, key string, value *domain.Summary, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.Summary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.Summary, _ time.Duration) error {
	return nil
}
