// Package store keeps the bounded message history in Redis lists. Logs are
// stored newest-first: every append pushes to the head and re-trims the list
// to the retention cap, which keeps the cap invariant even when several
// writers race on the same room.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ErinBejtaa/chat-app/pkg/keys"
	"github.com/ErinBejtaa/chat-app/pkg/model"
)

// History reads and writes message logs. It holds no state of its own beyond
// the retention cap; correctness relies on Redis, not on process memory.
type History struct {
	rdb *redis.Client
	max int64
}

func NewHistory(rdb *redis.Client, max int64) *History {
	return &History{rdb: rdb, max: max}
}

// AppendRoomMessage pushes a message onto the room's log and trims the log to
// the retention cap. The log is created implicitly on first write.
func (h *History) AppendRoomMessage(ctx context.Context, msg model.ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal room message: %w", err)
	}
	return h.push(ctx, keys.RoomList(msg.Room), raw)
}

// AppendDirectMessage pushes a private message onto the conversation log
// shared by both participants.
func (h *History) AppendDirectMessage(ctx context.Context, msg model.DirectMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal direct message: %w", err)
	}
	return h.push(ctx, keys.DirectList(msg.From, msg.To), raw)
}

func (h *History) push(ctx context.Context, key string, raw []byte) error {
	if err := h.rdb.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	if err := h.rdb.LTrim(ctx, key, 0, h.max-1).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

// RecentRoomMessages returns the limit most recent room messages in
// chronological order.
func (h *History) RecentRoomMessages(ctx context.Context, room string, limit int64) ([]model.ChatMessage, error) {
	return h.roomRange(ctx, room, 0, limit)
}

// RoomHistory paginates backward from the newest room message. Offset counts
// back from the head of the log.
func (h *History) RoomHistory(ctx context.Context, room string, offset, limit int64) ([]model.ChatMessage, error) {
	return h.roomRange(ctx, room, offset, limit)
}

func (h *History) roomRange(ctx context.Context, room string, offset, limit int64) ([]model.ChatMessage, error) {
	items, err := h.rdb.LRange(ctx, keys.RoomList(room), offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", keys.RoomList(room), err)
	}
	return parseList[model.ChatMessage](items), nil
}

// DirectHistory paginates backward through the conversation between two
// users; argument order does not matter.
func (h *History) DirectHistory(ctx context.Context, userA, userB string, offset, limit int64) ([]model.DirectMessage, error) {
	key := keys.DirectList(userA, userB)
	items, err := h.rdb.LRange(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return parseList[model.DirectMessage](items), nil
}

// parseList decodes stored entries, drops the ones that fail to parse, and
// reverses the newest-first storage order into chronological order.
func parseList[T any](items []string) []T {
	out := make([]T, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var v T
		if err := json.Unmarshal([]byte(items[i]), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
