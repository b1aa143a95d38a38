package model

// Archive record kinds.
const (
	ArchiveRoom   = "room"
	ArchiveDirect = "direct"
)

// ArchiveRecord is the flattened form of a stored plaintext message as it
// travels over the archive topic from gateway to archiver. Encrypted bodies
// are never archived.
type ArchiveRecord struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Room string `json:"room,omitempty"`
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Body string `json:"body"`
	TS   int64  `json:"ts"`
}
