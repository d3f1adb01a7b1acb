// Package testutil builds images, uploads and a wired service for tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/zhouzirui/vqa-lens/backend/internal/model/ocr"
	modelvqa "github.com/zhouzirui/vqa-lens/backend/internal/model/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/service/inference"
	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/store"
)

// PNG returns a w×h PNG filled with c.
func PNG(t testing.TB, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// Multipart builds a form with one file part named field and the given
// extra fields. It returns the body and its Content-Type header.
func Multipart(t testing.TB, field, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField err: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

// NewService wires a service over memory stores and the static engine.
func NewService(t testing.TB) *vqaservice.Service {
	t.Helper()
	sessions := store.NewMemory[modelvqa.Session](store.MemoryOptions{Name: "sessions"})
	results := store.NewMemory[ocr.Result](store.MemoryOptions{Name: "results"})
	queue := inference.NewQueue(inference.StaticEngine{}, inference.QueueOptions{Timeout: 5 * time.Second})
	t.Cleanup(func() {
		queue.Close()
		sessions.Close()
		results.Close()
	})

	svc, err := vqaservice.NewService(vqaservice.Options{Sessions: sessions, Results: results, Generator: queue})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}
