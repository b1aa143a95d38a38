// One-shot cleanup: deletes a room's history log and subscription counters
// from Redis.
//
//	go run ./scripts/purge_history -room general
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/ErinBejtaa/chat-app/pkg/keys"
)

func main() {
	room := flag.String("room", "", "room to purge")
	flag.Parse()
	if *room == "" {
		log.Fatal("-room is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	removed, err := rdb.Del(ctx, keys.RoomList(*room), keys.RoomCounter(*room)).Result()
	if err != nil {
		log.Fatalf("Failed to purge room %q: %v", *room, err)
	}
	log.Printf("Purged room %q (%d keys removed)", *room, removed)
}
