// Package pubsub bridges local session interest to the shared Redis broker.
// Each server process keeps its own subscription refcount per room and per
// user inside a shared hash, and holds the broker subscription for a channel
// exactly while its own count is positive. Published messages always travel
// through the broker, including back to the publishing process, so fan-out
// has a single code path.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ErinBejtaa/chat-app/pkg/keys"
	"github.com/ErinBejtaa/chat-app/pkg/model"
)

// Fanout receives broker messages for channels this instance is subscribed to
// and re-emits them to locally connected sessions.
type Fanout interface {
	RoomMessage(room string, msg model.ChatMessage)
	RoomTyping(room string, evt model.TypingEvent)
	UserEvent(user string, evt model.UserEvent)
}

// Multiplexer owns this instance's broker subscriptions. Refcount mutations
// are atomic HINCRBY calls on a per-instance hash field, so concurrent
// sessions and independent instances never clobber each other.
type Multiplexer struct {
	rdb      *redis.Client
	sub      *redis.PubSub
	fanout   Fanout
	instance string
}

func NewMultiplexer(rdb *redis.Client, fanout Fanout) *Multiplexer {
	m := &Multiplexer{
		rdb:      rdb,
		sub:      rdb.Subscribe(context.Background()),
		fanout:   fanout,
		instance: keys.InstanceField(uuid.NewString()),
	}
	go m.dispatch()
	return m
}

// InstanceField reports the refcount hash field owned by this process.
func (m *Multiplexer) InstanceField() string {
	return m.instance
}

// Close tears down the broker subscription and stops the dispatch loop.
func (m *Multiplexer) Close() error {
	return m.sub.Close()
}

// dispatch decodes inbound broker messages and hands them to the fanout.
// Payloads that fail to decode are dropped; one bad publisher must not stall
// the stream.
func (m *Multiplexer) dispatch() {
	for msg := range m.sub.Channel() {
		scope, name, ok := keys.ParseChannel(msg.Channel)
		if !ok {
			continue
		}
		switch scope {
		case keys.ScopeRoomMessages:
			var cm model.ChatMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				continue
			}
			m.fanout.RoomMessage(name, cm)
		case keys.ScopeRoomTyping:
			var te model.TypingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &te); err != nil {
				continue
			}
			m.fanout.RoomTyping(name, te)
		case keys.ScopeUser:
			var ue model.UserEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ue); err != nil || ue.Type == "" {
				continue
			}
			m.fanout.UserEvent(name, ue)
		}
	}
}

// EnsureRoom records one more local session interested in a room. The first
// interest on this instance subscribes the room's message and typing channels.
func (m *Multiplexer) EnsureRoom(ctx context.Context, room string) error {
	n, err := m.rdb.HIncrBy(ctx, keys.RoomCounter(room), m.instance, 1).Result()
	if err != nil {
		return fmt.Errorf("incr room count %q: %w", room, err)
	}
	if n == 1 {
		if err := m.sub.Subscribe(ctx, keys.RoomList(room), keys.RoomTyping(room)); err != nil {
			return fmt.Errorf("subscribe room %q: %w", room, err)
		}
	}
	return nil
}

// ReleaseRoom drops one local interest in a room. Any non-positive result
// clears this instance's field and unsubscribes both channels, so a double
// release is harmless.
func (m *Multiplexer) ReleaseRoom(ctx context.Context, room string) error {
	n, err := m.rdb.HIncrBy(ctx, keys.RoomCounter(room), m.instance, -1).Result()
	if err != nil {
		return fmt.Errorf("decr room count %q: %w", room, err)
	}
	if n <= 0 {
		if err := m.rdb.HDel(ctx, keys.RoomCounter(room), m.instance).Err(); err != nil {
			log.Printf("Failed to clear room counter for %q: %v", room, err)
		}
		if err := m.sub.Unsubscribe(ctx, keys.RoomList(room), keys.RoomTyping(room)); err != nil {
			return fmt.Errorf("unsubscribe room %q: %w", room, err)
		}
	}
	return nil
}

// EnsureUser records one more local session bound to a username and
// subscribes the user channel on the first interest.
func (m *Multiplexer) EnsureUser(ctx context.Context, user string) error {
	n, err := m.rdb.HIncrBy(ctx, keys.UserCounter(user), m.instance, 1).Result()
	if err != nil {
		return fmt.Errorf("incr user count %q: %w", user, err)
	}
	if n == 1 {
		if err := m.sub.Subscribe(ctx, keys.User(user)); err != nil {
			return fmt.Errorf("subscribe user %q: %w", user, err)
		}
	}
	return nil
}

// ReleaseUser drops one local interest in a username, with the same clamped
// cleanup semantics as ReleaseRoom.
func (m *Multiplexer) ReleaseUser(ctx context.Context, user string) error {
	n, err := m.rdb.HIncrBy(ctx, keys.UserCounter(user), m.instance, -1).Result()
	if err != nil {
		return fmt.Errorf("decr user count %q: %w", user, err)
	}
	if n <= 0 {
		if err := m.rdb.HDel(ctx, keys.UserCounter(user), m.instance).Err(); err != nil {
			log.Printf("Failed to clear user counter for %q: %v", user, err)
		}
		if err := m.sub.Unsubscribe(ctx, keys.User(user)); err != nil {
			return fmt.Errorf("unsubscribe user %q: %w", user, err)
		}
	}
	return nil
}

// PublishRoomMessage sends a message to every instance subscribed to the room.
func (m *Multiplexer) PublishRoomMessage(ctx context.Context, room string, msg model.ChatMessage) error {
	return m.publish(ctx, keys.RoomList(room), msg)
}

// PublishRoomTyping sends a typing event to every instance subscribed to the room.
func (m *Multiplexer) PublishRoomTyping(ctx context.Context, room string, evt model.TypingEvent) error {
	return m.publish(ctx, keys.RoomTyping(room), evt)
}

// PublishUserEvent sends an event to every instance holding the user's channel.
func (m *Multiplexer) PublishUserEvent(ctx context.Context, user string, evt model.UserEvent) error {
	return m.publish(ctx, keys.User(user), evt)
}

func (m *Multiplexer) publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", channel, err)
	}
	if err := m.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
