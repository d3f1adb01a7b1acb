// Package form reads uploaded images and fields from multipart requests.
package form

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
)

// ImageField is the multipart field carrying the upload.
const ImageField = "image"

var ErrMissingImage = errors.New("image file is required")

// ReadImage parses a multipart request of at most maxBytes and returns the
// image part. The declared part content type is kept; it is sniffed only
// when the client sent none.
func ReadImage(w http.ResponseWriter, r *http.Request, maxBytes int64) (vqaservice.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return vqaservice.Upload{}, invalid(fmt.Sprintf("upload exceeds %d bytes", maxBytes), err)
		}
		return vqaservice.Upload{}, invalid("failed to parse multipart form", err)
	}

	file, header, err := r.FormFile(ImageField)
	if err != nil {
		return vqaservice.Upload{}, invalid(ErrMissingImage.Error(), ErrMissingImage)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return vqaservice.Upload{}, invalid("failed to read image", err)
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return vqaservice.Upload{Data: data, ContentType: contentType, Filename: header.Filename}, nil
}

// Cleanup removes temporary files kept by ParseMultipartForm.
func Cleanup(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func invalid(msg string, err error) error {
	return &vqaservice.Error{Kind: vqaservice.InvalidInput, Op: "upload", Message: msg, Err: err}
}
