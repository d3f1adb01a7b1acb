package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "MAX_UPLOAD_MB", "DEVICE", "VQA_MODEL_ID", "OCR_MODEL_ID", "ENGINE_BACKEND",
		"LLAMA_SERVER", "LLAMA_SEED", "GENERATION_MAX_TOKENS", "INFERENCE_TIMEOUT",
		"INFERENCE_QUEUE_SIZE", "OCR_HONOR_MAX_LENGTH", "ARK_API_KEY", "ARK_ACCESS_KEY",
		"ARK_SECRET_KEY", "ARK_MODEL", "Model", "ARK_TEMPERATURE", "ARK_TOP_P",
		"STORE_BACKEND", "REDIS_ADDR", "REDIS_DB", "SESSION_TTL", "RESULT_TTL",
		"SESSION_MAX_ENTRIES", "RESULT_MAX_ENTRIES", "STORE_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MaxUploadBytes != 32<<20 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	m := cfg.Model
	if m.Device != "cpu" || m.Backend != BackendLlamaCpp || m.MaxTokens != 128 || m.QueueSize != 64 {
		t.Fatalf("unexpected model config %+v", m)
	}
	if m.InferenceTimeout != 120*time.Second || m.OCRHonorMaxLength {
		t.Fatalf("unexpected model config %+v", m)
	}
	if m.VQAModelID != "HuggingFaceTB/SmolVLM-256M-Instruct" || m.OCRModelID != "microsoft/trocr-base-printed" {
		t.Fatalf("unexpected model ids %+v", m)
	}
	s := cfg.Store
	if s.Backend != StoreMemory || s.SessionTTL != 0 || s.ResultMaxEntries != 0 {
		t.Fatalf("unexpected store config %+v", s)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("DEVICE", "GPU")
	t.Setenv("ENGINE_BACKEND", "static")
	t.Setenv("INFERENCE_TIMEOUT", "5")
	t.Setenv("OCR_HONOR_MAX_LENGTH", "true")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("SESSION_TTL", "3600")
	t.Setenv("RESULT_MAX_ENTRIES", "100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected explicit addr, got %q", cfg.Server.Addr)
	}
	if cfg.Model.Device != "gpu" || cfg.Model.Backend != BackendStatic {
		t.Fatalf("unexpected model config %+v", cfg.Model)
	}
	if cfg.Model.InferenceTimeout != 5*time.Second || !cfg.Model.OCRHonorMaxLength {
		t.Fatalf("unexpected model config %+v", cfg.Model)
	}
	if cfg.Store.Backend != StoreRedis || cfg.Store.SessionTTL != time.Hour || cfg.Store.ResultMaxEntries != 100 {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DEVICE":               "tpu",
		"ENGINE_BACKEND":       "onnx",
		"INFERENCE_TIMEOUT":    "soon",
		"OCR_HONOR_MAX_LENGTH": "maybe",
		"STORE_BACKEND":        "disk",
		"PORT":                 "80 80",
		"MAX_UPLOAD_MB":        "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			} else if !strings.Contains(err.Error(), key) {
				t.Fatalf("error %q does not name %s", err, key)
			}
		})
	}
}

func TestSweepIntervalRequiredWithTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_SWEEP_INTERVAL", "0")
	if _, err := Load(); err != nil {
		t.Fatalf("expected zero sweep interval to be accepted without TTL, got %v", err)
	}

	t.Setenv("RESULT_TTL", "60")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for TTL without sweep interval")
	}
	if !strings.Contains(err.Error(), "STORE_SWEEP_INTERVAL") {
		t.Fatalf("error %q does not name STORE_SWEEP_INTERVAL", err)
	}

	t.Setenv("STORE_BACKEND", "redis")
	if _, err := Load(); err != nil {
		t.Fatalf("redis expires keys itself, got %v", err)
	}
}

func TestArkBackendRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_BACKEND", "ark")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without ark credentials")
	}

	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "doubao-vision")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !cfg.AI.Enabled() || cfg.AI.Model != "doubao-vision" {
		t.Fatalf("unexpected ai config %+v", cfg.AI)
	}
}
