package domain

import (
	"context"
	"time"
)

// BoardCache holds the most recently built board.
type BoardCache interface {
	SetBoard(ctx context.Context, board Board) error
	GetBoard(ctx context.Context) (Board, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Signal bus channels.
const (
	ChannelSlots   = "slots"
	ChannelActions = "actions"
)

// SignalBus provides pub/sub fan-out of engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
