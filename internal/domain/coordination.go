package domain

import (
	"context"
	"time"
)

// RateLimiter counts requests per key over a sliding window shared by every
// replica. Allow reports whether the request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive, expiring locks. Acquire returns
// ErrLockHeld when another owner holds key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry read back from a durable stream. ID is the
// cursor to pass as lastID on the next read.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans scan results out to other processes: a fire-and-forget
// channel for live subscribers and an append-only stream for readers that
// poll from a cursor.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
