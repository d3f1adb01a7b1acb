package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/zhouzirui/vqa-lens/backend/internal/config"
)

func TestRunServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewStoresMemoryJanitors(t *testing.T) {
	stores, err := newStores(context.Background(), config.StoreConfig{
		Backend:       config.StoreMemory,
		SessionTTL:    time.Minute,
		SweepInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("newStores err: %v", err)
	}
	defer stores.Close()

	if len(stores.janitors) != 2 {
		t.Fatalf("expected 2 janitors, got %d", len(stores.janitors))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, janitor := range stores.janitors {
		if err := janitor(ctx); err != nil {
			t.Fatalf("janitor err: %v", err)
		}
	}
}

func TestNewEngineStatic(t *testing.T) {
	cfg := &config.Config{Model: config.ModelConfig{Backend: config.BackendStatic}}
	engine, err := newEngine(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newEngine err: %v", err)
	}
	if engine.Name() != "static" {
		t.Fatalf("expected static engine, got %s", engine.Name())
	}
}
