package vqa

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/vqa-lens/backend/internal/handler/apierror"
	"github.com/zhouzirui/vqa-lens/backend/internal/handler/form"
	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/pkg/utils"
)

// Service 抽象视觉问答业务，便于测试与替换实现
type Service interface {
	Init(ctx context.Context, up vqaservice.Upload) (string, string, error)
	Ask(ctx context.Context, sessionID, question string) (string, error)
	CheckSession(ctx context.Context, sessionID string) error
}

// Handler 视觉问答的HTTP处理器
type Handler struct {
	svc            Service
	maxUploadBytes int64
	upgrader       websocket.Upgrader
}

// New 创建视觉问答处理器
func New(svc Service, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册视觉问答相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vqa", func(vr chi.Router) {
		vr.Post("/init", h.handleInit)
		vr.Post("/ask", h.handleAsk)
		vr.Get("/ws/{sessionID}", h.handleWebSocket)
	})
}

type initResponse struct {
	SessionID string `json:"session_id"`
	Caption   string `json:"caption"`
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// handleInit 上传图片，生成描述并创建会话
func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	defer form.Cleanup(r)

	up, err := form.ReadImage(w, r, h.maxUploadBytes)
	if err != nil {
		apierror.Write(w, "vqa", err)
		return
	}

	sessionID, caption, err := h.svc.Init(r.Context(), up)
	if err != nil {
		apierror.Write(w, "vqa", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, initResponse{SessionID: sessionID, Caption: caption})
}

// handleAsk 针对会话中的图片提问，支持表单与JSON
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	defer form.Cleanup(r)
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req askRequest
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondErrorKind(w, http.StatusBadRequest, "invalid request body", string(vqaservice.InvalidInput))
			return
		}
	} else {
		req.SessionID = r.FormValue("session_id")
		req.Question = r.FormValue("question")
	}

	answer, err := h.svc.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		apierror.Write(w, "vqa", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, askResponse{Answer: answer})
}
