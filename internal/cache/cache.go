package cache

import (
	"context"
	"time"

	"fuelstation/backend/internal/domain"
)

// StatusCache holds the per-station daily reading status board. Entries
// are invalidated whenever a reading for the station-day changes.
type StatusCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReadingStatus, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReadingStatus, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopStatusCache struct{}

func (NoopStatusCache) Get(_ context.Context, _ string) (*domain.DailyReadingStatus, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(_ context.Context, _ string, _ *domain.DailyReadingStatus, _ time.Duration) error {
	return nil
}

func (NoopStatusCache) Delete(_ context.Context, _ string) error {
	return nil
}
