package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/vqa-lens/backend/internal/handler/ocr"
	"github.com/zhouzirui/vqa-lens/backend/internal/handler/vqa"
	middlewarePkg "github.com/zhouzirui/vqa-lens/backend/internal/middleware"
	vqaService "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/internal/web"
	"github.com/zhouzirui/vqa-lens/backend/pkg/utils"
)

type healthResponse struct {
	Status     string `json:"status"`
	Engine     string `json:"engine"`
	QueueDepth int    `json:"queueDepth"`
	Sessions   int    `json:"sessions"`
	Results    int    `json:"results"`
}

// NewRouter wires HTTP routes to core services. metrics may be nil.
func NewRouter(svc *vqaService.Service, metrics http.Handler, maxUploadBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	vqaHandler := vqa.New(svc, maxUploadBytes)
	ocrHandler := ocr.New(svc, maxUploadBytes)

	r.Route("/api", func(api chi.Router) {
		vqaHandler.RegisterRoutes(api)
		ocrHandler.RegisterRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h := svc.Health(r.Context())
		resp := healthResponse{
			Status:     "ok",
			Engine:     h.Engine,
			QueueDepth: h.QueueDepth,
			Sessions:   h.Sessions,
			Results:    h.Results,
		}
		status := http.StatusOK
		if !h.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		utils.RespondJSON(w, status, resp)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/", web.Index)
	r.Handle("/static/*", web.Static())

	return r
}
