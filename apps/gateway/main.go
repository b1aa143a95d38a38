package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/ErinBejtaa/chat-app/pkg/pubsub"
	"github.com/ErinBejtaa/chat-app/pkg/store"
)

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("Ignoring %s=%q: want a positive integer", name, v)
		return fallback
	}
	return n
}

func main() {
	port := envStr("PORT", "8080")
	redisURL := envStr("REDIS_URL", "redis://localhost:6379")
	recentLimit := envInt("MESSAGE_HISTORY_LIMIT", 10)
	historyMax := envInt("MESSAGE_HISTORY_MAX", 1000)

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)

	// Archive pipeline is optional; without brokers the gateway runs
	// relay-only.
	var archive *kafka.Writer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		archive = &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(brokers, ",")...),
			Topic:    envStr("ARCHIVE_TOPIC", "chat-archive"),
			Balancer: &kafka.LeastBytes{},
		}
		defer archive.Close()
	}

	hub := NewHub(store.NewHistory(rdb, historyMax), archive, recentLimit)
	mux := pubsub.NewMultiplexer(rdb, hub)
	hub.SetMultiplexer(mux)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	server := &http.Server{Addr: ":" + port}
	go func() {
		log.Printf("Gateway listening on :%s...", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	mux.Close()
	rdb.Close()
}
