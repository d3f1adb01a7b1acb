// Package prompt builds the text prompts sent to the vision-language model
// and cuts the echoed prompt back off its output.
//
// The prompt strings and the cut offset in Extract form one contract with the
// engine: the engine echoes the prompt with the placeholder collapsed to zero
// width, then appends its completion. That contract is named by
// EchoConvention; any change to a prompt or to the offset must bump it.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholder marks where the engine attends to the image.
const Placeholder = "<image>"

// EchoConvention identifies the echo behaviour Extract is calibrated for.
const EchoConvention = "placeholder-collapsed/v1"

const (
	captionText = Placeholder + " Describe this image in detail."
	askPrefix   = "Answer the question based on the image " + Placeholder + ". Question: "
	ocrText     = "Read the text on the image" + Placeholder + " and write it.\n Text on the image: "
)

// Operation selects one of the fixed prompt shapes.
type Operation string

const (
	Caption Operation = "caption"
	Ask     Operation = "ask"
	OCR     Operation = "ocr"
)

var (
	ErrEmptyQuestion    = errors.New("question must not be empty")
	ErrUnknownOperation = errors.New("unknown prompt operation")
	ErrShortOutput      = errors.New("model output shorter than echoed prompt")
)

// Build returns the prompt for op. question is only used by Ask and is
// inserted verbatim.
func Build(op Operation, question string) (string, error) {
	switch op {
	case Caption:
		return captionText, nil
	case Ask:
		if strings.TrimSpace(question) == "" {
			return "", ErrEmptyQuestion
		}
		return askPrefix + question, nil
	case OCR:
		return ocrText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

// Extract strips the echoed prompt from raw and returns the completion.
// The cut offset is len(prompt)-len(Placeholder) bytes.
func Extract(raw, prompt string) (string, error) {
	offset := max(len(prompt)-len(Placeholder), 0)
	if len(raw) < offset {
		return "", fmt.Errorf("%w: got %d bytes, need at least %d", ErrShortOutput, len(raw), offset)
	}
	return raw[offset:], nil
}

// Echo renders completion the way an engine following EchoConvention
// returns it. Adapters for engines that only return the completion use it.
func Echo(prompt, completion string) string {
	return strings.Replace(prompt, Placeholder, "", 1) + completion
}

// Split returns the text before and after the first placeholder, for engines
// that need their own image marker in the prompt.
func Split(prompt string) (before, after string, ok bool) {
	return strings.Cut(prompt, Placeholder)
}
