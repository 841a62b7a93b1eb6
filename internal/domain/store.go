package domain

import (
	"context"
	"time"

	"github.com/holiman/uint256"
)

// SettlementStore persists settlement audit records.
type SettlementStore interface {
	Create(ctx context.Context, s Settlement) error
	GetByID(ctx context.Context, id string) (Settlement, error)
	ListRecent(ctx context.Context, limit int) ([]Settlement, error)
	// ListBefore returns settlements executed before the cutoff, oldest first,
	// for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Settlement, error)
	// DeleteBefore removes settlements executed before the cutoff and returns
	// the number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ParamStore persists the durable engine parameters (rewards config and the
// minimum burn threshold) across restarts. Load methods report ok=false when
// no value has been stored yet.
type ParamStore interface {
	LoadRewards(ctx context.Context) (RewardsConfig, bool, error)
	SaveRewards(ctx context.Context, cfg RewardsConfig) error
	LoadMinBurn(ctx context.Context) (*uint256.Int, bool, error)
	SaveMinBurn(ctx context.Context, v *uint256.Int) error
}

// SignalBus publishes engine events (settlements, config changes) to
// interested subscribers such as the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns an
// unlock function, or ErrLockHeld when the lock is taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key using a rolling window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Archiver moves aged settlement records from hot storage to blob storage.
type Archiver interface {
	Archive(ctx context.Context, cutoff time.Time) (int64, error)
}
