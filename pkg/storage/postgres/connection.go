// Package postgres provides database and cache connection management for the
// CropLink platform: a lib/pq-backed primary connection with optional read
// replicas, and a Redis client shared by rate limiting and health checks.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
)

// ConnectionConfig holds database connection settings
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MaxIdle     int
	ConnTimeout time.Duration
}

// ConnectionManager manages the primary connection and round-robin replicas.
// Writes always go to the primary; reads prefer replicas when available.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	next     atomic.Uint64
}

// NewConnectionManager opens and verifies all configured connections
func NewConnectionManager(ctx context.Context, cfg ConnectionConfig) (*ConnectionManager, error) {
	if cfg.PrimaryURL == "" {
		return nil, fmt.Errorf("primary database URL is required")
	}

	primary, err := open(ctx, cfg.PrimaryURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}

	cm := &ConnectionManager{primary: primary}
	for _, url := range cfg.ReplicaURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		replica, err := open(ctx, url, cfg)
		if err != nil {
			cm.Close()
			return nil, fmt.Errorf("failed to connect to replica: %w", err)
		}
		cm.replicas = append(cm.replicas, replica)
	}

	return cm, nil
}

func open(ctx context.Context, url string, cfg ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	timeout := cfg.ConnTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Primary returns the writable connection
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Reader returns a read connection, preferring replicas round-robin
func (cm *ConnectionManager) Reader() *sql.DB {
	if len(cm.replicas) == 0 {
		return cm.primary
	}
	n := cm.next.Add(1)
	return cm.replicas[int(n)%len(cm.replicas)]
}

// Close closes all connections
func (cm *ConnectionManager) Close() error {
	var firstErr error
	if cm.primary != nil {
		if err := cm.primary.Close(); err != nil {
			firstErr = err
		}
	}
	for _, replica := range cm.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
