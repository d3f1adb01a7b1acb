// Package vqa orchestrates captioning, question answering and OCR over
// uploaded images: validate, decode, prompt, infer, extract, then store.
package vqa

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/vqa-lens/backend/internal/model/ocr"
	"github.com/zhouzirui/vqa-lens/backend/internal/model/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/imagecodec"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/inference"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/prompt"
	"github.com/zhouzirui/vqa-lens/backend/internal/store"
)

const (
	DefaultMaxTokens = 128
	DefaultMaxLength = 256
	MinMaxLength     = 1
	MaxMaxLength     = 2048
)

// Generator runs one inference call. *inference.Queue satisfies it.
type Generator interface {
	Name() string
	EchoConvention() string
	Generate(ctx context.Context, req inference.Request) (string, error)
	Healthy(ctx context.Context) bool
}

// Recorder counts finished operations. *metrics.Metrics satisfies it.
type Recorder interface {
	Operation(op, kind string)
}

// Options wires a Service.
type Options struct {
	Sessions  store.Store[vqa.Session]
	Results   store.Store[ocr.Result]
	Generator Generator
	// MaxTokens bounds every generation. Defaults to 128.
	MaxTokens int
	// HonorMaxLength makes OCR use the caller's max_length as the bound.
	HonorMaxLength bool
	Recorder       Recorder
}

// Upload is an image received from a client.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Artifact is a downloadable OCR result.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Health summarises the service for /healthz.
type Health struct {
	Engine     string
	Healthy    bool
	QueueDepth int
	Sessions   int
	Results    int
}

// Service is safe for concurrent use.
type Service struct {
	sessions       store.Store[vqa.Session]
	results        store.Store[ocr.Result]
	gen            Generator
	maxTokens      int
	honorMaxLength bool
	recorder       Recorder
}

// NewService validates opts. It refuses a generator whose echo convention
// does not match the extractor in package prompt.
func NewService(opts Options) (*Service, error) {
	if opts.Sessions == nil || opts.Results == nil {
		return nil, errors.New("vqa: session and result stores are required")
	}
	if opts.Generator == nil {
		return nil, errors.New("vqa: generator is required")
	}
	if got := opts.Generator.EchoConvention(); got != prompt.EchoConvention {
		return nil, fmt.Errorf("vqa: engine %s uses echo convention %q, extractor expects %q",
			opts.Generator.Name(), got, prompt.EchoConvention)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Service{
		sessions:       opts.Sessions,
		results:        opts.Results,
		gen:            opts.Generator,
		maxTokens:      opts.MaxTokens,
		honorMaxLength: opts.HonorMaxLength,
		recorder:       opts.Recorder,
	}, nil
}

// Init decodes an uploaded image, captions it and opens a session for it.
func (s *Service) Init(ctx context.Context, up Upload) (sessionID, caption string, err error) {
	const op = "init"
	defer s.record(op, &err)
	start := time.Now()

	if err := checkMediaType(op, up); err != nil {
		return "", "", err
	}
	img, err := decodeImage(op, up.Data)
	if err != nil {
		return "", "", err
	}

	caption, err = s.infer(ctx, op, prompt.Caption, "", img, s.maxTokens)
	if err != nil {
		return "", "", err
	}

	sessionID, err = s.sessions.Create(ctx, vqa.Session{
		ImageBytes:  up.Data,
		ContentType: up.ContentType,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", "", storeError(op, err)
	}

	log.Printf("[vqa] session %s created from %q, %d bytes (%s) in %s", sessionID, up.Filename, len(up.Data), up.ContentType, time.Since(start))
	return sessionID, caption, nil
}

// Ask answers question about the image stored in the session. The session is
// never modified.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (answer string, err error) {
	const op = "ask"
	defer s.record(op, &err)
	start := time.Now()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", newError(NotFound, op, "session not found", err)
		}
		return "", storeError(op, err)
	}

	if strings.TrimSpace(question) == "" {
		return "", newError(InvalidInput, op, "question must not be empty", prompt.ErrEmptyQuestion)
	}

	img, _, err := imagecodec.Decode(session.ImageBytes)
	if err != nil {
		return "", newError(InferenceFailure, op, "stored image could not be decoded", err)
	}

	answer, err = s.infer(ctx, op, prompt.Ask, question, img, s.maxTokens)
	if err != nil {
		return "", err
	}

	log.Printf("[vqa] session %s answered in %s", sessionID, time.Since(start))
	return answer, nil
}

// CheckSession reports whether sessionID names a live session.
func (s *Service) CheckSession(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(NotFound, "ask", "session not found", err)
		}
		return storeError("ask", err)
	}
	return nil
}

// OCR reads the text in an uploaded image and keeps it for download.
func (s *Service) OCR(ctx context.Context, up Upload, maxLength int) (resultID, text string, err error) {
	const op = "ocr"
	defer s.record(op, &err)
	start := time.Now()

	if err := checkMediaType(op, up); err != nil {
		return "", "", err
	}
	if maxLength < MinMaxLength || maxLength > MaxMaxLength {
		return "", "", newError(InvalidInput, op,
			fmt.Sprintf("max_length must be between %d and %d, got %d", MinMaxLength, MaxMaxLength, maxLength), nil)
	}

	img, err := decodeImage(op, up.Data)
	if err != nil {
		return "", "", err
	}

	bound := s.maxTokens
	if s.honorMaxLength {
		bound = maxLength
	}

	text, err = s.infer(ctx, op, prompt.OCR, "", img, bound)
	if err != nil {
		return "", "", err
	}

	resultID, err = s.results.Create(ctx, ocr.Result{Text: text, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", "", storeError(op, err)
	}

	log.Printf("[ocr] result %s stored from %q: %d bytes of text in %s", resultID, up.Filename, len(text), time.Since(start))
	return resultID, text, nil
}

// OCRDownload returns a stored OCR result as a text attachment.
func (s *Service) OCRDownload(ctx context.Context, resultID string) (art Artifact, err error) {
	const op = "download"
	defer s.record(op, &err)

	result, err := s.results.Get(ctx, resultID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Artifact{}, newError(NotFound, op, "OCR result not found", err)
		}
		return Artifact{}, storeError(op, err)
	}

	return Artifact{
		Filename:    "ocr_" + result.ID + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(result.Text),
	}, nil
}

// Health reports engine and store state. Store errors leave the count at -1.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Engine:   s.gen.Name(),
		Healthy:  s.gen.Healthy(ctx),
		Sessions: -1,
		Results:  -1,
	}
	if d, ok := s.gen.(interface{ Depth() int }); ok {
		h.QueueDepth = d.Depth()
	}
	if n, err := s.sessions.Len(ctx); err == nil {
		h.Sessions = n
	}
	if n, err := s.results.Len(ctx); err == nil {
		h.Results = n
	}
	return h
}

// ParseMaxLength converts the transport value of max_length. An empty value
// means the default of 256; range checks happen in OCR.
func ParseMaxLength(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultMaxLength, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newError(InvalidInput, "ocr", fmt.Sprintf("max_length must be an integer, got %q", raw), err)
	}
	return n, nil
}

func (s *Service) infer(ctx context.Context, op string, kind prompt.Operation, question string, img image.Image, maxTokens int) (string, error) {
	p, err := prompt.Build(kind, question)
	if err != nil {
		return "", newError(InvalidInput, op, err.Error(), err)
	}

	raw, err := s.gen.Generate(ctx, inference.Request{Prompt: p, Image: img, MaxTokens: maxTokens})
	if err != nil {
		return "", inferenceError(op, err)
	}

	answer, err := prompt.Extract(raw, p)
	if err != nil {
		return "", newError(InferenceFailure, op, "model output could not be parsed", err)
	}
	return answer, nil
}

func checkMediaType(op string, up Upload) error {
	if !imagecodec.IsImageMediaType(up.ContentType) {
		return newError(InvalidInput, op, fmt.Sprintf("unsupported media type %q, expected image/*", up.ContentType), nil)
	}
	return nil
}

func decodeImage(op string, data []byte) (image.Image, error) {
	img, _, err := imagecodec.Decode(data)
	switch {
	case errors.Is(err, imagecodec.ErrTooLarge):
		return nil, newError(InvalidInput, op, fmt.Sprintf("image dimensions too large, at most %d pixels", imagecodec.MaxPixels), err)
	case err != nil:
		return nil, newError(InvalidInput, op, "file is not a decodable image", err)
	}
	return img, nil
}

func (s *Service) record(op string, err *error) {
	if s.recorder == nil {
		return
	}
	kind := "ok"
	if *err != nil {
		kind = string(KindOf(*err))
	}
	s.recorder.Operation(op, kind)
}
