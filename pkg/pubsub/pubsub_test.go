package pubsub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ErinBejtaa/chat-app/pkg/keys"
	"github.com/ErinBejtaa/chat-app/pkg/model"
)

type captureFanout struct {
	rooms  chan model.ChatMessage
	typing chan model.TypingEvent
	users  chan model.UserEvent
}

func newCaptureFanout() *captureFanout {
	return &captureFanout{
		rooms:  make(chan model.ChatMessage, 16),
		typing: make(chan model.TypingEvent, 16),
		users:  make(chan model.UserEvent, 16),
	}
}

func (f *captureFanout) RoomMessage(room string, msg model.ChatMessage) { f.rooms <- msg }
func (f *captureFanout) RoomTyping(room string, evt model.TypingEvent)  { f.typing <- evt }
func (f *captureFanout) UserEvent(user string, evt model.UserEvent)     { f.users <- evt }

func newTestMux(t *testing.T, mr *miniredis.Miniredis) (*Multiplexer, *captureFanout, *redis.Client) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	fanout := newCaptureFanout()
	mux := NewMultiplexer(rdb, fanout)
	t.Cleanup(func() { mux.Close() })
	return mux, fanout, rdb
}

// waitDelivery publishes probe messages until one comes back through the
// fanout, proving the broker subscription is live. Subscription registration
// is asynchronous, so a single publish could race it.
func waitDelivery(t *testing.T, mux *Multiplexer, fanout *captureFanout, room string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; ; i++ {
		msg := model.ChatMessage{ID: fmt.Sprintf("probe-%d", i), Room: room, User: "probe", Text: "ping", TS: 1}
		if err := mux.PublishRoomMessage(context.Background(), room, msg); err != nil {
			t.Fatalf("PublishRoomMessage: %v", err)
		}
		select {
		case <-fanout.rooms:
			return
		case <-deadline:
			t.Fatal("no delivery while subscribed")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func drainRooms(fanout *captureFanout) {
	for {
		select {
		case <-fanout.rooms:
		default:
			return
		}
	}
}

func TestEnsureRoomRefcountAndDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	mux, fanout, rdb := newTestMux(t, mr)
	ctx := context.Background()

	// Two local sessions, one broker subscription.
	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	count, err := rdb.HGet(ctx, keys.RoomCounter("general"), mux.InstanceField()).Int64()
	if err != nil || count != 2 {
		t.Fatalf("refcount = %d (%v), want 2", count, err)
	}

	waitDelivery(t, mux, fanout, "general")

	// Still subscribed after the first release.
	if err := mux.ReleaseRoom(ctx, "general"); err != nil {
		t.Fatalf("ReleaseRoom: %v", err)
	}
	waitDelivery(t, mux, fanout, "general")

	// Final release clears the instance field and unsubscribes.
	if err := mux.ReleaseRoom(ctx, "general"); err != nil {
		t.Fatalf("ReleaseRoom: %v", err)
	}
	if err := rdb.HGet(ctx, keys.RoomCounter("general"), mux.InstanceField()).Err(); err != redis.Nil {
		t.Errorf("instance field still present after final release: %v", err)
	}

	drainRooms(fanout)
	msg := model.ChatMessage{ID: "after-release", Room: "general", User: "x", Text: "y", TS: 1}
	if err := mux.PublishRoomMessage(ctx, "general", msg); err != nil {
		t.Fatalf("PublishRoomMessage: %v", err)
	}
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case got := <-fanout.rooms:
			// Stray probes from before the release are fine; the message
			// published after it is not.
			if got.ID == "after-release" {
				t.Fatal("delivered a message published after release")
			}
		case <-deadline:
			return
		}
	}
}

// An extra release beyond zero is a no-op: no negative count left behind, no
// error, and a later ensure starts delivery again.
func TestReleaseRoomBeyondZeroIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	mux, fanout, rdb := newTestMux(t, mr)
	ctx := context.Background()

	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if err := mux.ReleaseRoom(ctx, "general"); err != nil {
		t.Fatalf("ReleaseRoom: %v", err)
	}
	if err := mux.ReleaseRoom(ctx, "general"); err != nil {
		t.Fatalf("extra ReleaseRoom: %v", err)
	}
	if err := rdb.HGet(ctx, keys.RoomCounter("general"), mux.InstanceField()).Err(); err != redis.Nil {
		t.Errorf("instance field present after double release: %v", err)
	}

	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom after double release: %v", err)
	}
	count, err := rdb.HGet(ctx, keys.RoomCounter("general"), mux.InstanceField()).Int64()
	if err != nil || count != 1 {
		t.Fatalf("refcount after re-ensure = %d (%v), want 1", count, err)
	}
	waitDelivery(t, mux, fanout, "general")
}

func TestRoomTypingDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	mux, fanout, _ := newTestMux(t, mr)
	ctx := context.Background()

	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	waitDelivery(t, mux, fanout, "general")

	evt := model.TypingEvent{Room: "general", User: "alice", IsTyping: true, TS: 2}
	if err := mux.PublishRoomTyping(ctx, "general", evt); err != nil {
		t.Fatalf("PublishRoomTyping: %v", err)
	}
	select {
	case got := <-fanout.typing:
		if got.User != "alice" || !got.IsTyping {
			t.Errorf("typing event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("typing event not delivered")
	}
}

func TestUserEventDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	mux, fanout, _ := newTestMux(t, mr)
	ctx := context.Background()

	if err := mux.EnsureUser(ctx, "bob"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	dm := model.DirectMessage{ID: "dm-1", From: "alice", To: "bob", Text: "secret", TS: 3}
	evt, err := model.NewUserEvent("private_message", dm)
	if err != nil {
		t.Fatalf("NewUserEvent: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if err := mux.PublishUserEvent(ctx, "bob", evt); err != nil {
			t.Fatalf("PublishUserEvent: %v", err)
		}
		select {
		case got := <-fanout.users:
			if got.Type != "private_message" {
				t.Errorf("user event type = %q", got.Type)
			}
			return
		case <-deadline:
			t.Fatal("user event not delivered")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// A payload that fails to decode is dropped without stalling the stream.
func TestMalformedPayloadDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	mux, fanout, rdb := newTestMux(t, mr)
	ctx := context.Background()

	if err := mux.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	waitDelivery(t, mux, fanout, "general")

	if err := rdb.Publish(ctx, keys.RoomList("general"), "{broken").Err(); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	good := model.ChatMessage{ID: "good", Room: "general", User: "alice", Text: "still here", TS: 4}
	if err := mux.PublishRoomMessage(ctx, "general", good); err != nil {
		t.Fatalf("PublishRoomMessage: %v", err)
	}

	select {
	case got := <-fanout.rooms:
		if got.ID != "good" {
			t.Errorf("delivered %q, want the message after the garbage", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stalled after malformed payload")
	}
}

// Two instances on one broker maintain independent refcount fields in the
// same hash and both receive a published message.
func TestTwoInstancesIndependentCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	muxA, fanoutA, rdb := newTestMux(t, mr)
	muxB, fanoutB, _ := newTestMux(t, mr)
	ctx := context.Background()

	if err := muxA.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom A: %v", err)
	}
	if err := muxB.EnsureRoom(ctx, "general"); err != nil {
		t.Fatalf("EnsureRoom B: %v", err)
	}
	waitDelivery(t, muxA, fanoutA, "general")
	drainRooms(fanoutB)

	msg := model.ChatMessage{ID: "both", Room: "general", User: "alice", Text: "hello", TS: 5}
	if err := muxA.PublishRoomMessage(ctx, "general", msg); err != nil {
		t.Fatalf("PublishRoomMessage: %v", err)
	}
	for name, ch := range map[string]chan model.ChatMessage{"A": fanoutA.rooms, "B": fanoutB.rooms} {
		// Earlier probe messages may still be in flight; wait for the real one.
		deadline := time.After(2 * time.Second)
	recv:
		for {
			select {
			case got := <-ch:
				if got.ID == "both" {
					break recv
				}
			case <-deadline:
				t.Fatalf("instance %s missed the message", name)
			}
		}
	}

	// Instance A leaving must not tear down B's subscription.
	if err := muxA.ReleaseRoom(ctx, "general"); err != nil {
		t.Fatalf("ReleaseRoom A: %v", err)
	}
	count, err := rdb.HGet(ctx, keys.RoomCounter("general"), muxB.InstanceField()).Int64()
	if err != nil || count != 1 {
		t.Fatalf("instance B refcount = %d (%v), want 1", count, err)
	}
	waitDelivery(t, muxB, fanoutB, "general")
}
