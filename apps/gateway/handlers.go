package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ErinBejtaa/chat-app/pkg/model"
	"github.com/ErinBejtaa/chat-app/pkg/validate"
)

// Request payloads. Validation is all-or-nothing: a payload is checked in
// full before any session state moves.

type joinRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type messagePayload struct {
	Text      string                  `json:"text,omitempty"`
	Encrypted *model.EncryptedPayload `json:"encrypted,omitempty"`
}

type privateMessagePayload struct {
	To        string                  `json:"to"`
	Text      string                  `json:"text,omitempty"`
	Encrypted *model.EncryptedPayload `json:"encrypted,omitempty"`
}

type typingPayload struct {
	Room string `json:"room"`
}

type privateTypingPayload struct {
	To string `json:"to"`
}

type historyPayload struct {
	Room   string `json:"room"`
	Offset int64  `json:"offset"`
	Limit  int64  `json:"limit"`
}

type privateHistoryPayload struct {
	With   string `json:"with"`
	Offset int64  `json:"offset"`
	Limit  int64  `json:"limit"`
}

type keyExchangePayload struct {
	To        string `json:"to"`
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
}

func (c *Client) handle(ctx context.Context, req model.Request) {
	switch req.Event {
	case "join_room":
		c.handleJoinRoom(ctx, req)
	case "send_message":
		c.handleSendMessage(ctx, req)
	case "typing_start":
		c.handleTyping(ctx, req, true)
	case "typing_stop":
		c.handleTyping(ctx, req, false)
	case "load_history":
		c.handleLoadHistory(ctx, req)
	case "private_message":
		c.handlePrivateMessage(ctx, req)
	case "private_typing_start":
		c.handlePrivateTyping(ctx, req, true)
	case "private_typing_stop":
		c.handlePrivateTyping(ctx, req, false)
	case "key_exchange":
		c.handleKeyExchange(ctx, req)
	case "load_private_history":
		c.handleLoadPrivateHistory(ctx, req)
	default:
		c.fail(req.Seq, "Unknown event")
	}
}

// requireIdentity rejects the request unless the session has bound a username.
func (c *Client) requireIdentity(seq int64) string {
	if c.user == "" {
		c.fail(seq, "Identify with a username first")
		return ""
	}
	return c.user
}

// handleJoinRoom binds the session identity and moves it into a room. A
// re-join releases the previous user/room subscriptions only for the parts
// that actually changed. Broker failures after the membership switch leave
// session state as-is; the next join or the disconnect reconciles.
func (c *Client) handleJoinRoom(ctx context.Context, req model.Request) {
	var p joinRoomPayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		c.fail(req.Seq, "Invalid username or room")
		return
	}
	if validate.Username(p.Username) != nil || validate.Room(p.Room) != nil {
		c.fail(req.Seq, "Invalid username or room")
		return
	}

	// A session contributes at most one count per user/room it holds, so a
	// re-join only touches the refcounts for the parts that changed.
	sameUser := c.user == p.Username
	sameRoom := c.room == p.Room

	if c.user != "" && !sameUser {
		c.hub.leaveUser(c, c.user)
		if err := c.hub.mux.ReleaseUser(ctx, c.user); err != nil {
			log.Printf("Failed to release user %q: %v", c.user, err)
		}
	}
	if c.room != "" && !sameRoom {
		c.hub.leaveRoom(c, c.room)
		if err := c.hub.mux.ReleaseRoom(ctx, c.room); err != nil {
			log.Printf("Failed to release room %q: %v", c.room, err)
		}
	}

	c.user = p.Username
	c.room = p.Room

	if !sameUser {
		c.hub.joinUser(c, p.Username)
		if err := c.hub.mux.EnsureUser(ctx, p.Username); err != nil {
			log.Printf("Failed to subscribe user %q: %v", p.Username, err)
			c.fail(req.Seq, "Subscription failed")
			return
		}
	}

	if !sameRoom {
		c.hub.joinRoom(c, p.Room)
		if err := c.hub.mux.EnsureRoom(ctx, p.Room); err != nil {
			log.Printf("Failed to subscribe room %q: %v", p.Room, err)
			c.fail(req.Seq, "Subscription failed")
			return
		}
	}

	recent, err := c.hub.history.RecentRoomMessages(ctx, p.Room, c.hub.recent)
	if err != nil {
		log.Printf("Failed to load recent messages for %q: %v", p.Room, err)
		c.fail(req.Seq, "History unavailable")
		return
	}
	c.push("room_history", model.RoomHistory{Room: p.Room, Messages: recent})
	c.hub.emitRoom(p.Room, c, "user_joined", model.Presence{Room: p.Room, User: p.Username})

	c.ack(req.Seq, model.Ack{OK: true})
}

func (c *Client) handleSendMessage(ctx context.Context, req model.Request) {
	var p messagePayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		c.fail(req.Seq, "Invalid message")
		return
	}
	if err := validate.Body(p.Text, p.Encrypted); err != nil {
		c.fail(req.Seq, "Invalid message")
		return
	}
	if c.room == "" || c.user == "" {
		c.fail(req.Seq, "Join a room first")
		return
	}
	if p.Encrypted != nil {
		c.secure = true
	}

	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		Room:      c.room,
		User:      c.user,
		Text:      p.Text,
		Encrypted: p.Encrypted,
		TS:        time.Now().UnixMilli(),
	}

	if err := c.hub.history.AppendRoomMessage(ctx, msg); err != nil {
		log.Printf("Failed to store message in %q: %v", c.room, err)
		c.fail(req.Seq, "Message not stored")
		return
	}
	if err := c.hub.mux.PublishRoomMessage(ctx, c.room, msg); err != nil {
		log.Printf("Failed to publish message to %q: %v", c.room, err)
		c.fail(req.Seq, "Message not delivered")
		return
	}
	if !c.secure && msg.Text != "" {
		c.hub.archiveRecord(model.ArchiveRecord{
			Kind: model.ArchiveRoom,
			ID:   msg.ID,
			Room: msg.Room,
			From: msg.User,
			Body: msg.Text,
			TS:   msg.TS,
		})
	}
	c.ack(req.Seq, model.Ack{OK: true})
}

func (c *Client) handleTyping(ctx context.Context, req model.Request, isTyping bool) {
	var p typingPayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Room(p.Room) != nil {
		c.fail(req.Seq, "Invalid typing payload")
		return
	}
	user := c.requireIdentity(req.Seq)
	if user == "" {
		return
	}
	if c.room != p.Room {
		c.fail(req.Seq, "Not in room")
		return
	}

	evt := model.TypingEvent{Room: p.Room, User: user, IsTyping: isTyping, TS: time.Now().UnixMilli()}
	if err := c.hub.mux.PublishRoomTyping(ctx, p.Room, evt); err != nil {
		log.Printf("Failed to publish typing to %q: %v", p.Room, err)
		c.fail(req.Seq, "Typing not delivered")
		return
	}
	c.ack(req.Seq, model.Ack{OK: true})
}

func (c *Client) handleLoadHistory(ctx context.Context, req model.Request) {
	var p historyPayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Room(p.Room) != nil {
		c.fail(req.Seq, "Invalid history request")
		return
	}
	offset, limit, err := validate.Page(p.Offset, p.Limit)
	if err != nil {
		c.fail(req.Seq, "Invalid history request")
		return
	}
	if c.room != p.Room {
		c.fail(req.Seq, "Not in room")
		return
	}

	messages, err := c.hub.history.RoomHistory(ctx, p.Room, offset, limit)
	if err != nil {
		log.Printf("Failed to load history for %q: %v", p.Room, err)
		c.fail(req.Seq, "History unavailable")
		return
	}
	c.ack(req.Seq, model.RoomHistoryPage{
		OK:         true,
		Room:       p.Room,
		Messages:   messages,
		NextOffset: offset + limit,
	})
}

// handlePrivateMessage persists the message and publishes it to both
// participants' channels, so the sender's other sessions observe it too.
func (c *Client) handlePrivateMessage(ctx context.Context, req model.Request) {
	var p privateMessagePayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Username(p.To) != nil {
		c.fail(req.Seq, "Invalid private message")
		return
	}
	if err := validate.Body(p.Text, p.Encrypted); err != nil {
		c.fail(req.Seq, "Invalid private message")
		return
	}
	user := c.requireIdentity(req.Seq)
	if user == "" {
		return
	}
	if p.Encrypted != nil {
		c.secure = true
	}

	msg := model.DirectMessage{
		ID:        uuid.NewString(),
		From:      user,
		To:        p.To,
		Text:      p.Text,
		Encrypted: p.Encrypted,
		TS:        time.Now().UnixMilli(),
	}

	if err := c.hub.history.AppendDirectMessage(ctx, msg); err != nil {
		log.Printf("Failed to store private message for %q: %v", p.To, err)
		c.fail(req.Seq, "Message not stored")
		return
	}

	evt, err := model.NewUserEvent("private_message", msg)
	if err != nil {
		c.fail(req.Seq, "Invalid private message")
		return
	}
	if err := c.hub.mux.PublishUserEvent(ctx, p.To, evt); err != nil {
		log.Printf("Failed to publish private message to %q: %v", p.To, err)
		c.fail(req.Seq, "Message not delivered")
		return
	}
	if err := c.hub.mux.PublishUserEvent(ctx, user, evt); err != nil {
		log.Printf("Failed to echo private message to %q: %v", user, err)
		c.fail(req.Seq, "Message not delivered")
		return
	}
	if !c.secure && msg.Text != "" {
		c.hub.archiveRecord(model.ArchiveRecord{
			Kind: model.ArchiveDirect,
			ID:   msg.ID,
			From: msg.From,
			To:   msg.To,
			Body: msg.Text,
			TS:   msg.TS,
		})
	}
	c.ack(req.Seq, model.Ack{OK: true})
}

func (c *Client) handlePrivateTyping(ctx context.Context, req model.Request, isTyping bool) {
	var p privateTypingPayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Username(p.To) != nil {
		c.fail(req.Seq, "Invalid typing payload")
		return
	}
	user := c.requireIdentity(req.Seq)
	if user == "" {
		return
	}

	evt, err := model.NewUserEvent("private_typing", model.PrivateTypingEvent{
		From:     user,
		To:       p.To,
		IsTyping: isTyping,
		TS:       time.Now().UnixMilli(),
	})
	if err != nil {
		c.fail(req.Seq, "Invalid typing payload")
		return
	}
	if err := c.hub.mux.PublishUserEvent(ctx, p.To, evt); err != nil {
		log.Printf("Failed to publish private typing to %q: %v", p.To, err)
		c.fail(req.Seq, "Typing not delivered")
		return
	}
	c.ack(req.Seq, model.Ack{OK: true})
}

// handleKeyExchange relays opaque key material to the recipient. The key is
// never stored or inspected.
func (c *Client) handleKeyExchange(ctx context.Context, req model.Request) {
	var p keyExchangePayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Username(p.To) != nil {
		c.fail(req.Seq, "Invalid key exchange")
		return
	}
	if err := validate.KeyExchange(p.PublicKey, p.Algorithm); err != nil {
		c.fail(req.Seq, "Invalid key exchange")
		return
	}
	user := c.requireIdentity(req.Seq)
	if user == "" {
		return
	}
	c.secure = true

	evt, err := model.NewUserEvent("key_exchange", model.KeyExchangeEvent{
		From:      user,
		To:        p.To,
		PublicKey: p.PublicKey,
		Algorithm: p.Algorithm,
		TS:        time.Now().UnixMilli(),
	})
	if err != nil {
		c.fail(req.Seq, "Invalid key exchange")
		return
	}
	if err := c.hub.mux.PublishUserEvent(ctx, p.To, evt); err != nil {
		log.Printf("Failed to relay key exchange to %q: %v", p.To, err)
		c.fail(req.Seq, "Key exchange not delivered")
		return
	}
	c.ack(req.Seq, model.Ack{OK: true})
}

func (c *Client) handleLoadPrivateHistory(ctx context.Context, req model.Request) {
	var p privateHistoryPayload
	if err := json.Unmarshal(req.Data, &p); err != nil || validate.Username(p.With) != nil {
		c.fail(req.Seq, "Invalid private history request")
		return
	}
	offset, limit, err := validate.Page(p.Offset, p.Limit)
	if err != nil {
		c.fail(req.Seq, "Invalid private history request")
		return
	}
	user := c.requireIdentity(req.Seq)
	if user == "" {
		return
	}

	messages, err := c.hub.history.DirectHistory(ctx, user, p.With, offset, limit)
	if err != nil {
		log.Printf("Failed to load private history with %q: %v", p.With, err)
		c.fail(req.Seq, "History unavailable")
		return
	}
	c.ack(req.Seq, model.DirectHistoryPage{
		OK:         true,
		With:       p.With,
		Messages:   messages,
		NextOffset: offset + limit,
	})
}

// disconnect runs once when the connection drops. Releases are unconditional
// and idempotent; a session that never joined releases nothing.
func (c *Client) disconnect() {
	ctx := context.Background()
	if c.room != "" && c.user != "" {
		c.hub.emitRoom(c.room, c, "user_left", model.Presence{Room: c.room, User: c.user})
	}
	if c.room != "" {
		c.hub.leaveRoom(c, c.room)
		if err := c.hub.mux.ReleaseRoom(ctx, c.room); err != nil {
			log.Printf("Failed to release room %q on disconnect: %v", c.room, err)
		}
	}
	if c.user != "" {
		c.hub.leaveUser(c, c.user)
		if err := c.hub.mux.ReleaseUser(ctx, c.user); err != nil {
			log.Printf("Failed to release user %q on disconnect: %v", c.user, err)
		}
	}
}
