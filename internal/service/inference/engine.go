// Package inference wraps vision-language model backends and serialises
// access to them.
package inference

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	ErrClosed  = errors.New("inference engine closed")
	ErrTimeout = errors.New("inference timed out")
)

// Request is one generation call against an image.
type Request struct {
	// Prompt contains prompt.Placeholder exactly once.
	Prompt string
	Image  image.Image
	// MaxTokens bounds the generated continuation.
	MaxTokens int
}

// Engine is a vision-language model backend. Generate returns the prompt
// echo followed by the completion, as described by EchoConvention. Engines
// are not required to be safe for concurrent use; wrap them in a Queue.
type Engine interface {
	Name() string
	EchoConvention() string
	Generate(ctx context.Context, req Request) (string, error)
	Healthy(ctx context.Context) bool
}

// Observer receives queue and engine timings. Implemented by internal/metrics.
type Observer interface {
	QueueWait(device string, d time.Duration)
	Inference(device, engine string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) QueueWait(string, time.Duration)                {}
func (nopObserver) Inference(string, string, time.Duration, error) {}
