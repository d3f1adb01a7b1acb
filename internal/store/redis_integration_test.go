package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	if testing.Short() || os.Getenv("VQA_INTEGRATION") == "" {
		t.Skip("set VQA_INTEGRATION=1 to run redis integration tests")
	}

	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	s := NewRedis[fakeEntry](client, RedisOptions{Prefix: "test:session", TTL: time.Minute})
	defer s.Close()

	id, err := s.Create(ctx, fakeEntry{Data: []byte{0, 1, 2, 255}})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.ID != id || string(got.Data) != string([]byte{0, 1, 2, 255}) {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ttl, err := client.TTL(ctx, "test:session:"+id).Result()
	if err != nil {
		t.Fatalf("TTL err: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Len err: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 key, got %d", n)
	}

	s.opts.newID = func() string { return id }
	if _, err := s.Create(ctx, fakeEntry{}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}
