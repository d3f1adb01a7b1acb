package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// Prefix namespaces keys, e.g. "vqa:session".
	Prefix string
	// TTL is applied on insert. Zero stores keys without expiry.
	TTL time.Duration

	newID func() string
}

// Redis keeps entries as JSON documents under "<prefix>:<id>". It lets
// several API processes share sessions; MaxEntries is left to the server's
// maxmemory policy.
type Redis[T Entry[T]] struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis[T Entry[T]](client redis.UniversalClient, opts RedisOptions) *Redis[T] {
	if opts.newID == nil {
		opts.newID = NewID
	}
	if opts.Prefix == "" {
		opts.Prefix = "vqa"
	}
	return &Redis[T]{client: client, opts: opts}
}

func (r *Redis[T]) key(id string) string {
	return r.opts.Prefix + ":" + id
}

// Create implements Store. SETNX guarantees an existing id is never overwritten.
func (r *Redis[T]) Create(ctx context.Context, payload T) (string, error) {
	id := r.opts.newID()
	data, err := json.Marshal(payload.WithID(id))
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(id), data, r.opts.TTL).Result()
	if err != nil {
		return "", mapRedisErr(err)
	}
	if !ok {
		return "", ErrDuplicateID
	}
	return id, nil
}

// Get implements Store.
func (r *Redis[T]) Get(ctx context.Context, id string) (T, error) {
	var value T
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, ErrNotFound
	}
	if err != nil {
		return value, mapRedisErr(err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return value, nil
}

// Len counts keys under the prefix with SCAN.
func (r *Redis[T]) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.opts.Prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, mapRedisErr(err)
	}
	return n, nil
}

// Close implements Store.
func (r *Redis[T]) Close() error {
	return r.client.Close()
}

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("redis: %w", err)
}
