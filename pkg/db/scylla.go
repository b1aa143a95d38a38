// Package db wraps gocql session setup for the archive keyspace.
package db

import (
	"log"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

// NewSession connects to the ScyllaDB cluster with the retry and timeout
// settings the archiver expects. Pass keyspace "system" before the archive
// keyspace exists.
func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Println("Connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}
