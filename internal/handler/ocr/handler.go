package ocr

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vqa-lens/backend/internal/handler/apierror"
	"github.com/zhouzirui/vqa-lens/backend/internal/handler/form"
	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
	"github.com/zhouzirui/vqa-lens/backend/pkg/utils"
)

// Service 抽象文字识别业务
type Service interface {
	OCR(ctx context.Context, up vqaservice.Upload, maxLength int) (string, string, error)
	OCRDownload(ctx context.Context, resultID string) (vqaservice.Artifact, error)
}

// Handler 文字识别的HTTP处理器
type Handler struct {
	svc            Service
	maxUploadBytes int64
}

// New 创建文字识别处理器
func New(svc Service, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes 注册文字识别相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ocr", h.handleOCR)
	r.Get("/ocr/{ocrID}/download", h.handleDownload)
}

type ocrResponse struct {
	OCRID string `json:"ocr_id"`
	Text  string `json:"text"`
}

// handleOCR 识别上传图片中的文字
func (h *Handler) handleOCR(w http.ResponseWriter, r *http.Request) {
	defer form.Cleanup(r)

	up, err := form.ReadImage(w, r, h.maxUploadBytes)
	if err != nil {
		apierror.Write(w, "ocr", err)
		return
	}

	maxLength, err := vqaservice.ParseMaxLength(r.FormValue("max_length"))
	if err != nil {
		apierror.Write(w, "ocr", err)
		return
	}

	resultID, text, err := h.svc.OCR(r.Context(), up, maxLength)
	if err != nil {
		apierror.Write(w, "ocr", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, ocrResponse{OCRID: resultID, Text: text})
}

// handleDownload 以文本附件形式下载识别结果
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	art, err := h.svc.OCRDownload(r.Context(), chi.URLParam(r, "ocrID"))
	if err != nil {
		apierror.Write(w, "ocr", err)
		return
	}

	utils.SetAttachmentHeaders(w, art.Filename, art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Body); err != nil {
		log.Printf("[ocr] write download failed: %v", err)
	}
}
