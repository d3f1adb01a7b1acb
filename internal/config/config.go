package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Model  ModelConfig
	AI     AIConfig
	Store  StoreConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	modelCfg, err := loadModelConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	if modelCfg.Backend == BackendArk && !ai.Enabled() {
		return nil, fmt.Errorf("ENGINE_BACKEND=ark 需要 ARK_API_KEY (或 AK/SK) 以及 ARK_MODEL")
	}

	return &Config{Server: server, Model: modelCfg, AI: ai, Store: storeCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
}

// loadServerConfig 解析服务器监听地址与上传大小限制。
func loadServerConfig() (ServerConfig, error) {
	addr, err := parseAddr(strings.TrimSpace(os.Getenv("PORT")))
	if err != nil {
		return ServerConfig{}, err
	}

	uploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 32)
	if err != nil {
		return ServerConfig{}, err
	}
	if uploadMB < 1 {
		return ServerConfig{}, fmt.Errorf("invalid MAX_UPLOAD_MB value %q: must be positive", strconv.Itoa(uploadMB))
	}

	return ServerConfig{Addr: addr, MaxUploadBytes: int64(uploadMB) << 20}, nil
}

func parseAddr(port string) (string, error) {
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// 推理后端。
const (
	BackendLlamaCpp = "llamacpp"
	BackendArk      = "ark"
	BackendStatic   = "static"
)

// ModelConfig 描述视觉模型与推理队列配置。
type ModelConfig struct {
	Device            string
	VQAModelID        string
	OCRModelID        string
	Backend           string
	LlamaServer       string
	LlamaSeed         int
	MaxTokens         int
	InferenceTimeout  time.Duration
	QueueSize         int
	OCRHonorMaxLength bool
}

func loadModelConfig() (ModelConfig, error) {
	device := strings.ToLower(getEnvOrDefault("DEVICE", "cpu"))
	if device != "cpu" && device != "gpu" {
		return ModelConfig{}, fmt.Errorf("invalid DEVICE value %q: expected cpu or gpu", device)
	}

	backend := strings.ToLower(getEnvOrDefault("ENGINE_BACKEND", BackendLlamaCpp))
	switch backend {
	case BackendLlamaCpp, BackendArk, BackendStatic:
	default:
		return ModelConfig{}, fmt.Errorf("invalid ENGINE_BACKEND value %q: expected llamacpp, ark or static", backend)
	}

	seed, err := parseIntEnv("LLAMA_SEED", -1)
	if err != nil {
		return ModelConfig{}, err
	}

	maxTokens, err := parseIntEnv("GENERATION_MAX_TOKENS", 128)
	if err != nil {
		return ModelConfig{}, err
	}
	if maxTokens < 1 {
		return ModelConfig{}, fmt.Errorf("invalid GENERATION_MAX_TOKENS value %q: must be positive", strconv.Itoa(maxTokens))
	}

	timeout, err := parseSecondsEnv("INFERENCE_TIMEOUT", 120*time.Second)
	if err != nil {
		return ModelConfig{}, err
	}

	queueSize, err := parseIntEnv("INFERENCE_QUEUE_SIZE", 64)
	if err != nil {
		return ModelConfig{}, err
	}
	if queueSize < 1 {
		queueSize = 1
	}

	honor, err := parseBoolEnv("OCR_HONOR_MAX_LENGTH", false)
	if err != nil {
		return ModelConfig{}, err
	}

	return ModelConfig{
		Device:            device,
		VQAModelID:        getEnvOrDefault("VQA_MODEL_ID", "HuggingFaceTB/SmolVLM-256M-Instruct"),
		OCRModelID:        getEnvOrDefault("OCR_MODEL_ID", "microsoft/trocr-base-printed"),
		Backend:           backend,
		LlamaServer:       getEnvOrDefault("LLAMA_SERVER", "http://localhost:8081"),
		LlamaSeed:         seed,
		MaxTokens:         maxTokens,
		InferenceTimeout:  timeout,
		QueueSize:         queueSize,
		OCRHonorMaxLength: honor,
	}, nil
}

// AIConfig 描述火山方舟 (Ark) 视觉模型配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context, maxTokens int) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		// 兼容旧的 Model 变量。
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       modelName,
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
	}, nil
}

// 存储后端。
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// StoreConfig 描述会话与 OCR 结果存储配置。零值 TTL / 上限表示不过期、不限量。
type StoreConfig struct {
	Backend           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionTTL        time.Duration
	ResultTTL         time.Duration
	SessionMaxEntries int
	ResultMaxEntries  int
	SweepInterval     time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMemory))
	if backend != StoreMemory && backend != StoreRedis {
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q: expected memory or redis", backend)
	}

	redisDB, err := parseIntEnv("REDIS_DB", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	sessionTTL, err := parseSecondsEnv("SESSION_TTL", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	resultTTL, err := parseSecondsEnv("RESULT_TTL", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	sessionMax, err := parseIntEnv("SESSION_MAX_ENTRIES", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	resultMax, err := parseIntEnv("RESULT_MAX_ENTRIES", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	sweep, err := parseSecondsEnv("STORE_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return StoreConfig{}, err
	}
	if backend == StoreMemory && (sessionTTL > 0 || resultTTL > 0) && sweep <= 0 {
		return StoreConfig{}, fmt.Errorf("invalid STORE_SWEEP_INTERVAL value %d: must be positive when SESSION_TTL or RESULT_TTL is set", int(sweep.Seconds()))
	}

	return StoreConfig{
		Backend:           backend,
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		SessionTTL:        sessionTTL,
		ResultTTL:         resultTTL,
		SessionMaxEntries: max(sessionMax, 0),
		ResultMaxEntries:  max(resultMax, 0),
		SweepInterval:     sweep,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

// parseSecondsEnv 读取以秒为单位的整数；负数视为 0。
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 0 {
		return 0, nil
	}
	return time.Duration(*val) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
