package domain

import (
	"context"
	"time"
)

// PriceOracle returns the latest mark for an asset. Implementations return
// ErrPriceUnavailable when no quote exists; staleness is judged by the caller.
type PriceOracle interface {
	Quote(ctx context.Context, asset string) (Quote, error)
}

// PriceFeed publishes marks into the oracle.
type PriceFeed interface {
	SetQuote(ctx context.Context, q Quote) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub and durable streams for committed ledger events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
