package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ErinBejtaa/chat-app/pkg/model"
	"github.com/ErinBejtaa/chat-app/pkg/pubsub"
	"github.com/ErinBejtaa/chat-app/pkg/store"
)

// Hub is this instance's registry of live sessions, indexed by the room they
// joined and the username they bound. It implements pubsub.Fanout: broker
// messages for a subscribed channel are re-emitted here to every local member.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool // room -> sessions joined to it
	users map[string]map[*Client]bool // username -> sessions bound to it

	mux     *pubsub.Multiplexer
	history *store.History
	archive *kafka.Writer // nil disables the archive pipeline
	recent  int64         // messages pushed on join
}

func NewHub(history *store.History, archive *kafka.Writer, recent int64) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]bool),
		users:   make(map[string]map[*Client]bool),
		history: history,
		archive: archive,
		recent:  recent,
	}
}

// SetMultiplexer wires the broker bridge. The multiplexer needs the hub as
// its fanout target, so it is attached after construction and before serving.
func (h *Hub) SetMultiplexer(mux *pubsub.Multiplexer) {
	h.mux = mux
}

func (h *Hub) joinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) leaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) joinUser(c *Client, user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[user] == nil {
		h.users[user] = make(map[*Client]bool)
	}
	h.users[user][c] = true
}

func (h *Hub) leaveUser(c *Client, user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.users[user]; ok {
		delete(sessions, c)
		if len(sessions) == 0 {
			delete(h.users, user)
		}
	}
}

// RoomMessage fans a broker room message out to local members.
func (h *Hub) RoomMessage(room string, msg model.ChatMessage) {
	h.emitRoom(room, nil, "message", msg)
}

// RoomTyping fans a broker typing event out to local members.
func (h *Hub) RoomTyping(room string, evt model.TypingEvent) {
	h.emitRoom(room, nil, "typing", evt)
}

// UserEvent fans a broker user event out to local sessions bound to the user.
// The event name travels inside the envelope and the payload stays raw, so
// relayed key material is never reinterpreted here.
func (h *Hub) UserEvent(user string, evt model.UserEvent) {
	frame, err := encodeFrame(evt.Type, evt.Payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[user] {
		c.enqueue(frame)
	}
}

// emitRoom sends an event to every local member of a room, minus the
// excluded session if one is given.
func (h *Hub) emitRoom(room string, except *Client, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := encodeFrame(event, raw)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		c.enqueue(frame)
	}
}

func encodeFrame(event string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(model.Frame{Type: model.FrameEvent, Event: event, Data: data})
}

// archiveRecord hands a stored plaintext message to the archive topic,
// best-effort. Failures are logged and never reach the relay path.
func (h *Hub) archiveRecord(rec model.ArchiveRecord) {
	if h.archive == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	go func() {
		if err := h.archive.WriteMessages(context.Background(), kafka.Message{
			Value: raw,
			Time:  time.Now(),
		}); err != nil {
			log.Printf("Failed to archive message %s: %v", rec.ID, err)
		}
	}()
}
