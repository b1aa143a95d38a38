// Package keys derives the Redis key and channel names shared by the gateway
// instances. Every name is a deterministic function of the room or user it
// belongs to, so independent processes agree on them without coordination.
package keys

import "strings"

const (
	roomPrefix = "room:"
	userPrefix = "user:"

	messagesSuffix = ":messages"
	typingSuffix   = ":typing"
)

// Channel scopes recognized by ParseChannel.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeRoomMessages
	ScopeRoomTyping
	ScopeUser
)

// RoomList is both the history list key and the message channel for a room.
func RoomList(room string) string {
	return roomPrefix + room + messagesSuffix
}

// RoomTyping is the typing-presence channel for a room.
func RoomTyping(room string) string {
	return roomPrefix + room + typingSuffix
}

// User is the per-user channel carrying private messages, private typing and
// key exchanges.
func User(user string) string {
	return userPrefix + user
}

// DirectList is the history list key for a private conversation. The pair is
// canonicalized so either ordering of the participants maps to the same key.
func DirectList(userA, userB string) string {
	left, right := userA, userB
	if left > right {
		left, right = right, left
	}
	return "dm:" + left + ":" + right + messagesSuffix
}

// RoomCounter is the hash holding per-instance subscription refcounts for a room.
func RoomCounter(room string) string {
	return "subcount:" + roomPrefix + room
}

// UserCounter is the hash holding per-instance subscription refcounts for a user.
func UserCounter(user string) string {
	return "subcount:" + userPrefix + user
}

// InstanceField names one server process inside a refcount hash.
func InstanceField(instanceID string) string {
	return "instance:" + instanceID
}

// ParseChannel maps an inbound pub/sub channel name back to its scope and the
// room/user it was derived from. Valid room and user names never contain
// colons, so the prefixes and suffixes are unambiguous.
func ParseChannel(channel string) (Scope, string, bool) {
	switch {
	case strings.HasPrefix(channel, userPrefix):
		return ScopeUser, channel[len(userPrefix):], true
	case strings.HasPrefix(channel, roomPrefix):
		rest := channel[len(roomPrefix):]
		if name, ok := strings.CutSuffix(rest, messagesSuffix); ok {
			return ScopeRoomMessages, name, true
		}
		if name, ok := strings.CutSuffix(rest, typingSuffix); ok {
			return ScopeRoomTyping, name, true
		}
	}
	return ScopeUnknown, "", false
}
