// Package apierror turns service errors into HTTP error responses.
package apierror

import (
	"errors"
	"log"
	"net/http"
	"strings"

	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/pkg/utils"
)

// Status maps an error kind to its HTTP status.
func Status(kind vqaservice.Kind) int {
	switch kind {
	case vqaservice.InvalidInput:
		return http.StatusBadRequest
	case vqaservice.NotFound:
		return http.StatusNotFound
	case vqaservice.Timeout:
		return http.StatusGatewayTimeout
	case vqaservice.InferenceFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Wrapped causes stay in
// the log; errors from outside the service get the status text.
func Message(err error) string {
	var e *vqaservice.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return strings.ToLower(http.StatusText(Status(vqaservice.KindOf(err))))
}

// Write logs err once under area and sends the error response.
func Write(w http.ResponseWriter, area string, err error) {
	kind := vqaservice.KindOf(err)
	status := Status(kind)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] request failed (%s): %v", area, kind, err)
	} else {
		log.Printf("[%s] rejected (%s): %v", area, kind, err)
	}
	utils.RespondErrorKind(w, status, Message(err), string(kind))
}
