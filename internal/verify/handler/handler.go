package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"credlock/internal/platform/middleware"
	"credlock/internal/verify"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/httputil"
)

const maxDocumentBytes = 4 << 20

// Service defines the verification operations the HTTP layer needs.
type Service interface {
	Verify(ctx context.Context, hash domain.ContentHash) (*verify.Result, error)
	VerifyDocument(ctx context.Context, document []byte) (*verify.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Get("/verify/{hash}", h.HandleVerifyByHash)
}

type VerifyRequest struct {
	ContentHash string `json:"content_hash,omitempty"`
	Document    string `json:"document,omitempty"`
}

func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.ContentHash = strings.TrimSpace(r.ContentHash)
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.ContentHash == "" && r.Document == "" {
		return dErrors.New(dErrors.CodeValidation, "either content_hash or document is required")
	}
	return nil
}

// HandleVerify verifies a document or a content hash. When both are supplied
// the document wins; the hash is recomputed server-side.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	var (
		result *verify.Result
		err    error
	)
	if req.Document != "" {
		var raw []byte
		raw, err = base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "document must be base64 encoded"))
			return
		}
		if len(raw) > maxDocumentBytes {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "document exceeds the size limit"))
			return
		}
		result, err = h.service.VerifyDocument(ctx, raw)
	} else {
		var hash domain.ContentHash
		hash, err = domain.ParseContentHash(req.ContentHash)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid content_hash"))
			return
		}
		result, err = h.service.Verify(ctx, hash)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleVerifyByHash verifies a content hash passed in the URL. Convenient
// for QR-code style lookups where no body is available.
func (h *Handler) HandleVerifyByHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	hash, err := domain.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid content hash"))
		return
	}

	result, err := h.service.Verify(ctx, hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed", "error", err, "request_id", requestID, "content_hash", hash)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
