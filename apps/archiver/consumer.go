package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ErinBejtaa/chat-app/pkg/db"
	"github.com/ErinBejtaa/chat-app/pkg/model"
)

type Consumer struct {
	reader *kafka.Reader
	db     *db.Session
}

func NewConsumer(brokers []string, topic string, groupID string, session *db.Session) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, db: session}
}

// Consume drains the archive topic into ScyllaDB. Malformed records are
// skipped; insert failures are logged and the record is dropped rather than
// stalling the stream.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading archive record: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var rec model.ArchiveRecord
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			log.Printf("Skipping malformed archive record: %v", err)
			continue
		}

		switch rec.Kind {
		case model.ArchiveRoom:
			query := `INSERT INTO room_messages (room, sent_at, id, author, body) VALUES (?, ?, ?, ?, ?)`
			if err := c.db.Query(query, rec.Room, time.UnixMilli(rec.TS), rec.ID, rec.From, rec.Body).Exec(); err != nil {
				log.Printf("Failed to archive room message %s: %v", rec.ID, err)
			}
		case model.ArchiveDirect:
			query := `INSERT INTO dm_messages (pair, sent_at, id, sender, recipient, body) VALUES (?, ?, ?, ?, ?, ?)`
			if err := c.db.Query(query, pairKey(rec.From, rec.To), time.UnixMilli(rec.TS), rec.ID, rec.From, rec.To, rec.Body).Exec(); err != nil {
				log.Printf("Failed to archive direct message %s: %v", rec.ID, err)
			}
		default:
			log.Printf("Skipping archive record %s with unknown kind %q", rec.ID, rec.Kind)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// pairKey canonicalizes a conversation partition key; both directions of a
// conversation land in one partition.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
