package model

// EncryptedPayload is an opaque ciphertext body produced by a client. The
// server relays and stores it without ever inspecting the contents.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce,omitempty"`
	Algorithm  string `json:"algorithm"`
}

// ChatMessage is a message sent to a room. Exactly one of Text and Encrypted
// is set. Timestamps are Unix milliseconds.
type ChatMessage struct {
	ID        string            `json:"id"`
	Room      string            `json:"room"`
	User      string            `json:"user"`
	Text      string            `json:"text,omitempty"`
	Encrypted *EncryptedPayload `json:"encrypted,omitempty"`
	TS        int64             `json:"ts"`
}

// DirectMessage is a private message between two users. Both directions of a
// conversation share one storage log keyed by the sorted participant pair.
type DirectMessage struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Text      string            `json:"text,omitempty"`
	Encrypted *EncryptedPayload `json:"encrypted,omitempty"`
	TS        int64             `json:"ts"`
}

// TypingEvent is ephemeral room presence; it is published but never stored.
type TypingEvent struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
	TS       int64  `json:"ts"`
}

// PrivateTypingEvent is ephemeral typing presence for a private conversation.
type PrivateTypingEvent struct {
	From     string `json:"from"`
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
	TS       int64  `json:"ts"`
}

// KeyExchangeEvent relays public key material between two users. The server
// treats the key as inert data.
type KeyExchangeEvent struct {
	From      string `json:"from"`
	To        string `json:"to"`
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
	TS        int64  `json:"ts"`
}

// RoomHistory is pushed to a session right after it joins a room.
type RoomHistory struct {
	Room     string        `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

// Presence announces a user joining or leaving a room.
type Presence struct {
	Room string `json:"room"`
	User string `json:"user"`
}
