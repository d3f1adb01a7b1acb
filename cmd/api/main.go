package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/vqa-lens/backend/internal/config"
	"github.com/zhouzirui/vqa-lens/backend/internal/handler"
	"github.com/zhouzirui/vqa-lens/backend/internal/metrics"
	"github.com/zhouzirui/vqa-lens/backend/internal/model/ocr"
	"github.com/zhouzirui/vqa-lens/backend/internal/model/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/inference"
	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("[vqa] device=%s vqa_model=%s ocr_model=%s backend=%s",
		cfg.Model.Device, cfg.Model.VQAModelID, cfg.Model.OCRModelID, cfg.Model.Backend)

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize inference engine: %v", err)
	}

	m := metrics.New()
	queue := inference.NewQueue(engine, inference.QueueOptions{
		Device:   cfg.Model.Device,
		Size:     cfg.Model.QueueSize,
		Timeout:  cfg.Model.InferenceTimeout,
		Observer: m,
	})
	m.TrackQueue(cfg.Model.Device, queue.Depth)

	stores, err := newStores(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to initialize stores: %v", err)
	}
	m.TrackStore("sessions", stores.sessions.Len)
	m.TrackStore("results", stores.results.Len)

	svc, err := vqaservice.NewService(vqaservice.Options{
		Sessions:       stores.sessions,
		Results:        stores.results,
		Generator:      queue,
		MaxTokens:      cfg.Model.MaxTokens,
		HonorMaxLength: cfg.Model.OCRHonorMaxLength,
		Recorder:       m,
	})
	if err != nil {
		log.Fatalf("failed to initialize vqa service: %v", err)
	}

	router := handler.NewRouter(svc, m.Handler(), cfg.Server.MaxUploadBytes)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("VQA Lens backend listening on %s", srv.Addr)
		return runServer(gctx, srv)
	})
	for _, janitor := range stores.janitors {
		g.Go(func() error { return janitor(gctx) })
	}

	err = g.Wait()
	queue.Close()
	stores.Close()
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("shutdown complete")
}

// newEngine 根据 ENGINE_BACKEND 创建推理后端。
func newEngine(ctx context.Context, cfg *config.Config) (inference.Engine, error) {
	switch cfg.Model.Backend {
	case config.BackendArk:
		chatModel, err := cfg.AI.NewChatModel(ctx, cfg.Model.MaxTokens)
		if err != nil {
			return nil, err
		}
		return inference.NewArkEngine(chatModel), nil
	case config.BackendStatic:
		log.Println("[inference] using static engine, answers do not come from a model")
		return inference.StaticEngine{}, nil
	default:
		engine := inference.NewLlamaEngine(cfg.Model.LlamaServer, cfg.Model.VQAModelID, cfg.Model.LlamaSeed, nil)
		if !engine.Healthy(ctx) {
			log.Printf("[inference] warning: llama server at %s is not healthy yet", cfg.Model.LlamaServer)
		}
		return engine, nil
	}
}

type storeSet struct {
	sessions store.Store[vqa.Session]
	results  store.Store[ocr.Result]
	janitors []func(context.Context) error
}

func (s *storeSet) Close() {
	if err := s.sessions.Close(); err != nil {
		log.Printf("[store] close sessions: %v", err)
	}
	if err := s.results.Close(); err != nil {
		log.Printf("[store] close results: %v", err)
	}
}

// newStores 创建会话与 OCR 结果存储。
func newStores(ctx context.Context, cfg config.StoreConfig) (*storeSet, error) {
	if cfg.Backend == config.StoreRedis {
		sessionClient, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		resultClient, err := newRedisClient(ctx, cfg)
		if err != nil {
			_ = sessionClient.Close()
			return nil, err
		}
		log.Printf("[store] using redis at %s", cfg.RedisAddr)
		return &storeSet{
			sessions: store.NewRedis[vqa.Session](sessionClient, store.RedisOptions{Prefix: "vqa:session", TTL: cfg.SessionTTL}),
			results:  store.NewRedis[ocr.Result](resultClient, store.RedisOptions{Prefix: "vqa:ocr", TTL: cfg.ResultTTL}),
		}, nil
	}

	sessions := store.NewMemory[vqa.Session](store.MemoryOptions{
		Name:       "sessions",
		TTL:        cfg.SessionTTL,
		MaxEntries: cfg.SessionMaxEntries,
	})
	results := store.NewMemory[ocr.Result](store.MemoryOptions{
		Name:       "results",
		TTL:        cfg.ResultTTL,
		MaxEntries: cfg.ResultMaxEntries,
	})
	return &storeSet{
		sessions: sessions,
		results:  results,
		janitors: []func(context.Context) error{
			func(ctx context.Context) error { return sessions.Run(ctx, cfg.SweepInterval) },
			func(ctx context.Context) error { return results.Run(ctx, cfg.SweepInterval) },
		},
	}, nil
}

func newRedisClient(ctx context.Context, cfg config.StoreConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
