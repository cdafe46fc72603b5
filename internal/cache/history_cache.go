package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"chatroom-backend/internal/model"
)

const (
	recentKey = "chat:messages:recent"
	dirtyKey  = "chat:messages:recent:dirty"
)

// HistoryCache keeps the latest listing of the room. A dirty marker written on
// every mutation stops readers from repopulating it with a stale listing.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetRecent(ctx context.Context) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, recentKey).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get recent messages failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached messages failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetRecent(ctx context.Context, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal recent messages failed: %w", err)
	}
	if err := c.client.Set(ctx, recentKey, payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set recent messages failed: %w", err)
	}
	return nil
}

// Invalidate marks the listing dirty and drops it.
func (c *HistoryCache) Invalidate(ctx context.Context) error {
	if err := c.client.Set(ctx, dirtyKey, "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	if err := c.client.Del(ctx, recentKey).Err(); err != nil {
		return fmt.Errorf("redis delete recent messages failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}
