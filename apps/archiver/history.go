package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ErinBejtaa/chat-app/pkg/db"
)

type ArchivedMessage struct {
	ID     string    `json:"id"`
	Room   string    `json:"room"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// RoomArchiveHandler serves GET /archive/rooms?room=<name>&limit=<n>,
// returning archived messages newest-first.
type RoomArchiveHandler struct {
	db *db.Session
}

func NewRoomArchiveHandler(session *db.Session) *RoomArchiveHandler {
	return &RoomArchiveHandler{db: session}
}

func (h *RoomArchiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	iter := h.db.Query(
		`SELECT id, room, author, body, sent_at FROM room_messages WHERE room = ? LIMIT ?`,
		room, limit,
	).Iter()

	messages := []ArchivedMessage{}
	var m ArchivedMessage
	for iter.Scan(&m.ID, &m.Room, &m.Author, &m.Body, &m.SentAt) {
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		log.Printf("Failed to read archive for %q: %v", room, err)
		http.Error(w, "Failed to retrieve archive", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
