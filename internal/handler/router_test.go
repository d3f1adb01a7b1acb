package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/vqa-lens/backend/internal/metrics"
	"github.com/zhouzirui/vqa-lens/backend/internal/testutil"
)

func TestRouterServesHealthMetricsAndPage(t *testing.T) {
	m := metrics.New()
	m.Operation("init", "ok")
	r := NewRouter(testutil.NewService(t), m.Handler(), 1<<20)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Engine != "static" || health.Sessions != 0 {
		t.Fatalf("unexpected health %+v", health)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `vqa_operations_total{kind="ok",op="init"} 1`) {
		t.Fatalf("unexpected metrics response %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "/static/main.js") {
		t.Fatalf("expected index page, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/static/main.js", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "/api/vqa/init") {
		t.Fatalf("expected script, got %d", resp.Code)
	}
}

func TestRouterMountsAPI(t *testing.T) {
	r := NewRouter(testutil.NewService(t), nil, 1<<20)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/ocr/missing/download", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"kind":"NotFound"`) {
		t.Fatalf("expected service error body, got %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", resp.Code)
	}
}
