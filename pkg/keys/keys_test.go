package keys

import "testing"

func TestDirectListIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"zed", "aaron"},
		{"same", "same"},
	}
	for _, p := range pairs {
		forward := DirectList(p[0], p[1])
		backward := DirectList(p[1], p[0])
		if forward != backward {
			t.Errorf("DirectList(%q, %q) = %q but reversed = %q", p[0], p[1], forward, backward)
		}
	}
	if got := DirectList("bob", "alice"); got != "dm:alice:bob:messages" {
		t.Errorf("DirectList canonical form = %q", got)
	}
}

func TestChannelNames(t *testing.T) {
	if got := RoomList("general"); got != "room:general:messages" {
		t.Errorf("RoomList = %q", got)
	}
	if got := RoomTyping("general"); got != "room:general:typing" {
		t.Errorf("RoomTyping = %q", got)
	}
	if got := User("alice"); got != "user:alice" {
		t.Errorf("User = %q", got)
	}
	if got := RoomCounter("general"); got != "subcount:room:general" {
		t.Errorf("RoomCounter = %q", got)
	}
	if got := UserCounter("alice"); got != "subcount:user:alice" {
		t.Errorf("UserCounter = %q", got)
	}
}

// ParseChannel must invert the channel constructors for every valid name.
func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel string
		scope   Scope
		name    string
		ok      bool
	}{
		{RoomList("general"), ScopeRoomMessages, "general", true},
		{RoomTyping("general"), ScopeRoomTyping, "general", true},
		{User("alice"), ScopeUser, "alice", true},
		{"subcount:room:general", ScopeUnknown, "", false},
		{"something:else", ScopeUnknown, "", false},
		{"room:general", ScopeUnknown, "", false},
	}
	for _, tt := range tests {
		scope, name, ok := ParseChannel(tt.channel)
		if scope != tt.scope || name != tt.name || ok != tt.ok {
			t.Errorf("ParseChannel(%q) = (%v, %q, %v), want (%v, %q, %v)",
				tt.channel, scope, name, ok, tt.scope, tt.name, tt.ok)
		}
	}
}
