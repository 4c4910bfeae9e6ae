// Package redis provides a Redis-backed checkpoint store for deployments
// that run the importer without PostgreSQL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkral/importer/internal/core/cursor"
)

const cursorKeyPrefix = "import_cursor:"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps the Redis connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CursorRepo implements cursor.Repository on Redis. Each checkpoint is a
// JSON document under its own key.
type CursorRepo struct {
	client *Client
}

// NewCursorRepo creates a Redis checkpoint repository.
func NewCursorRepo(client *Client) *CursorRepo {
	return &CursorRepo{client: client}
}

func (r *CursorRepo) Get(ctx context.Context, streamID string) (*cursor.State, error) {
	raw, err := r.client.rdb.Get(ctx, cursorKeyPrefix+streamID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cursor.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}

	var state cursor.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return &state, nil
}

func (r *CursorRepo) Save(ctx context.Context, streamID string, state *cursor.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := r.client.rdb.Set(ctx, cursorKeyPrefix+streamID, raw, 0).Err(); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (r *CursorRepo) Delete(ctx context.Context, streamID string) error {
	if err := r.client.rdb.Del(ctx, cursorKeyPrefix+streamID).Err(); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

func (r *CursorRepo) List(ctx context.Context) (map[string]*cursor.State, error) {
	out := make(map[string]*cursor.State)

	iter := r.client.rdb.Scan(ctx, 0, cursorKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get cursor %s: %w", key, err)
		}
		var state cursor.State
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("decode cursor %s: %w", key, err)
		}
		out[key[len(cursorKeyPrefix):]] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cursors: %w", err)
	}
	return out, nil
}
