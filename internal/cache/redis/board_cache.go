package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

const boardKey = keyPrefix + "board"

// BoardCache implements domain.BoardCache. The board is stored as one JSON
// document with a TTL so a stalled poller stops serving stale data.
type BoardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.BoardCache = (*BoardCache)(nil)

// NewBoardCache creates a BoardCache. A ttl of zero keeps the board until it
// is overwritten.
func NewBoardCache(c *Client, ttl time.Duration) *BoardCache {
	return &BoardCache{rdb: c.Underlying(), ttl: ttl}
}

// SetBoard stores b.
func (bc *BoardCache) SetBoard(ctx context.Context, b domain.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("redis: marshal board: %w", err)
	}
	if err := bc.rdb.Set(ctx, boardKey, data, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set board: %w", err)
	}
	return nil
}

// GetBoard returns the cached board, or domain.ErrNotFound.
func (bc *BoardCache) GetBoard(ctx context.Context) (domain.Board, error) {
	data, err := bc.rdb.Get(ctx, boardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Board{}, fmt.Errorf("redis: get board: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Board{}, fmt.Errorf("redis: get board: %w", err)
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Board{}, fmt.Errorf("redis: unmarshal board: %w", err)
	}
	return b, nil
}
