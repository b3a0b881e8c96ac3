package domain

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PriceCache provides fast access to the latest marginal prices of a market,
// one price per outcome slot.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, prices []sdkmath.LegacyDec, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) ([]sdkmath.LegacyDec, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. State-mutating market calls are
// serialized through a per-market lock when multiple API replicas share one
// durable state.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
