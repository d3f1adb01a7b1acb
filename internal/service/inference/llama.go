package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/vqa-lens/backend/internal/service/imagecodec"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/prompt"
)

// llama.cpp references uploaded images by id inside the prompt.
const llamaImageID = 10

// DefaultHealthTimeout bounds a single /health request.
const DefaultHealthTimeout = 2 * time.Second

type jsonmap map[string]any

// Sampling defaults for short, factual answers.
var llamaDefaults = jsonmap{
	"temperature":    0.1,
	"top_k":          40,
	"top_p":          0.9,
	"repeat_penalty": 1.1,
	"cache_prompt":   false,
	"stream":         false,
	"slot_id":        -1,
}

// LlamaEngine talks to a llama.cpp server running a multimodal model. The
// server only returns the completion, so the echo is rebuilt locally.
type LlamaEngine struct {
	srvAddr string
	seed    int
	model   string
	client  *http.Client

	healthTimeout time.Duration
}

var _ Engine = (*LlamaEngine)(nil)

// NewLlamaEngine returns an engine for the server at srvAddr. If httpClient
// is nil http.DefaultClient is used.
func NewLlamaEngine(srvAddr, model string, seed int, httpClient *http.Client) *LlamaEngine {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LlamaEngine{
		srvAddr: strings.TrimRight(srvAddr, "/"),
		seed:    seed,
		model:   model,
		client:  httpClient,

		healthTimeout: DefaultHealthTimeout,
	}
}

func (l *LlamaEngine) Name() string { return "llamacpp" }

func (l *LlamaEngine) EchoConvention() string { return prompt.EchoConvention }

// Healthy probes the server's /health endpoint.
func (l *LlamaEngine) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, l.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.srvAddr+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Generate implements Engine.
func (l *LlamaEngine) Generate(ctx context.Context, req Request) (string, error) {
	before, after, ok := prompt.Split(req.Prompt)
	if !ok {
		return "", fmt.Errorf("prompt has no %s placeholder", prompt.Placeholder)
	}

	png, err := imagecodec.EncodePNG(req.Image)
	if err != nil {
		return "", err
	}

	data := maps.Clone(llamaDefaults)
	data["prompt"] = fmt.Sprintf("%s[img-%d]%s", before, llamaImageID, after)
	data["n_predict"] = req.MaxTokens
	data["seed"] = l.seed
	data["image_data"] = []jsonmap{
		{"data": base64.StdEncoding.EncodeToString(png), "id": llamaImageID},
	}
	if l.model != "" {
		data["model"] = l.model
	}

	content, err := l.sendRequest(ctx, data)
	if err != nil {
		return "", err
	}
	return prompt.Echo(req.Prompt, content), nil
}

func (l *LlamaEngine) sendRequest(ctx context.Context, data jsonmap) (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&data); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.srvAddr+"/completion", buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llama server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var respbody struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respbody); err != nil {
		return "", fmt.Errorf("decode llama response: %w", err)
	}
	return respbody.Content, nil
}
