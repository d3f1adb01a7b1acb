package client_test

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/vqa-lens/backend/internal/client"
	"github.com/zhouzirui/vqa-lens/backend/internal/handler"
	"github.com/zhouzirui/vqa-lens/backend/internal/testutil"
)

func newServer(t *testing.T) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler.NewRouter(testutil.NewService(t), nil, 1<<20))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, srv.Client())
}

func TestClientBrowserFlow(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	img := testutil.PNG(t, color.RGBA{B: 255, A: 255}, 5, 5)

	session, err := c.Init(ctx, "blue.png", img)
	if err != nil {
		t.Fatalf("Init err: %v", err)
	}
	if session.SessionID == "" || !strings.Contains(session.Caption, "#0000ff") {
		t.Fatalf("unexpected init result %+v", session)
	}

	answer, err := c.Ask(ctx, session.SessionID, "What colour?")
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if answer != session.Caption {
		t.Fatalf("expected answer %q, got %q", session.Caption, answer)
	}

	result, err := c.OCR(ctx, "scan.png", img, 64)
	if err != nil {
		t.Fatalf("OCR err: %v", err)
	}
	dl, err := c.Download(ctx, result.OCRID)
	if err != nil {
		t.Fatalf("Download err: %v", err)
	}
	if dl.Filename != "ocr_"+result.OCRID+".txt" || string(dl.Body) != result.Text {
		t.Fatalf("unexpected download %q %q", dl.Filename, dl.Body)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	c := newServer(t)

	_, err := c.Ask(context.Background(), "missing", "anything?")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != 404 || apiErr.Kind != "NotFound" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}

	_, err = c.OCR(context.Background(), "notes.txt", []byte("plain text"), 0)
	if !errors.As(err, &apiErr) || apiErr.Status != 400 {
		t.Fatalf("expected 400 api error, got %v", err)
	}
}

func TestDownloadKeepsServerFilenameLocal(t *testing.T) {
	cases := map[string]string{
		`attachment; filename="../../home/user/.profile"`: ".profile",
		`attachment; filename="/etc/passwd"`:              "passwd",
		`attachment; filename="..\\..\\evil.txt"`:         "evil.txt",
		`attachment; filename=".."`:                       "ocr_abc.txt",
		`attachment`:                                      "ocr_abc.txt",
	}
	for disposition, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", disposition)
			_, _ = w.Write([]byte("text"))
		}))
		dl, err := client.New(srv.URL, srv.Client()).Download(context.Background(), "abc")
		srv.Close()
		if err != nil {
			t.Fatalf("Download err: %v", err)
		}
		if dl.Filename != want {
			t.Fatalf("%s: expected filename %q, got %q", disposition, want, dl.Filename)
		}
	}
}
