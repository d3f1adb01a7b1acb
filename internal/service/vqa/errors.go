package vqa

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/vqa-lens/backend/internal/service/inference"
	"github.com/zhouzirui/vqa-lens/backend/internal/store"
)

// Kind classifies failures for callers and for the HTTP status mapping.
type Kind string

const (
	InvalidInput      Kind = "InvalidInput"
	NotFound          Kind = "NotFound"
	InferenceFailure  Kind = "InferenceFailure"
	Timeout           Kind = "Timeout"
	ExhaustionFailure Kind = "ExhaustionFailure"
)

// Error is returned by every Service operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err. Errors that did not come from the service
// are classified by their sentinel; anything unknown is ExhaustionFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound
	case errors.Is(err, inference.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, inference.ErrClosed):
		return InferenceFailure
	default:
		return ExhaustionFailure
	}
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// inferenceError maps a failed generate call.
func inferenceError(op string, err error) *Error {
	switch {
	case errors.Is(err, inference.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newError(Timeout, op, "inference timed out", err)
	case errors.Is(err, inference.ErrClosed):
		return newError(InferenceFailure, op, "engine closed", err)
	case errors.Is(err, context.Canceled):
		return newError(InferenceFailure, op, "request cancelled", err)
	default:
		return newError(InferenceFailure, op, "inference failed", err)
	}
}

// storeError maps a failed store call.
func storeError(op string, err error) *Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(NotFound, op, "not found", err)
	case errors.Is(err, store.ErrDuplicateID):
		return newError(ExhaustionFailure, op, "could not allocate a unique id", err)
	default:
		return newError(ExhaustionFailure, op, "store unavailable", err)
	}
}
