// The archiver consumes stored plaintext messages from the archive topic and
// keeps a durable copy in ScyllaDB, past the bounded Redis retention window.
// It also serves a small read API over the archive.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/ErinBejtaa/chat-app/pkg/db"
)

const keyspace = "chat_archive"

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	brokers := strings.Split(envStr("KAFKA_BROKERS", "localhost:19092"), ",")
	scyllaHosts := strings.Split(envStr("SCYLLA_HOSTS", "localhost:9042"), ",")
	topic := envStr("ARCHIVE_TOPIC", "chat-archive")
	port := envStr("ARCHIVE_PORT", "8081")
	groupID := "archiver-group"

	// Schema setup runs at startup; a session without the keyspace is needed
	// to create it first.
	sysSession, err := db.NewSession(scyllaHosts, "system")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB system keyspace: %v", err)
	}
	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(scyllaHosts, keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB %s keyspace: %v", keyspace, err)
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS room_messages (
		room text,
		sent_at timestamp,
		id text,
		author text,
		body text,
		PRIMARY KEY (room, sent_at, id)
	) WITH CLUSTERING ORDER BY (sent_at DESC, id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create room_messages table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS dm_messages (
		pair text,
		sent_at timestamp,
		id text,
		sender text,
		recipient text,
		body text,
		PRIMARY KEY (pair, sent_at, id)
	) WITH CLUSTERING ORDER BY (sent_at DESC, id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create dm_messages table: %v", err)
	}

	consumer := NewConsumer(brokers, topic, groupID, session)
	defer consumer.Close()
	go consumer.Consume(context.Background())

	http.Handle("/archive/rooms", NewRoomArchiveHandler(session))
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	log.Printf("Archiver listening on :%s...", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
