package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"credlock/internal/certificate/models"
	"credlock/internal/certificate/service"
	"credlock/internal/identity/hasher"
	"credlock/internal/platform/middleware"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/httputil"
)

// Service defines the certificate operations the HTTP layer needs.
type Service interface {
	Issue(ctx context.Context, req service.IssueRequest) (*models.Record, error)
	Revoke(ctx context.Context, hash domain.ContentHash) (*models.Record, error)
	FindByHash(ctx context.Context, hash domain.ContentHash) (*models.Record, error)
	ListBySubjectWallet(ctx context.Context, wallet domain.WalletAddress) ([]*models.Record, error)
	ListAll(ctx context.Context, limit int) ([]*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/certificates", h.HandleIssue)
	r.Get("/certificates/{hash}", h.HandleGet)
	r.Post("/certificates/{hash}/revoke", h.HandleRevoke)
	r.Get("/certificates/wallet/{address}", h.HandleListByWallet)
}

// RegisterAdmin mounts the operator view, which includes revoked records.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/certificates", h.HandleListAll)
}

// HandleIssue anchors a certificate on the ledger and records it locally.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueCertificateRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	cmd, err := h.toCommand(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Issue(ctx, *cmd)
	if err != nil {
		h.logger.ErrorContext(ctx, "issue certificate failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toCertificateResponse(record))
}

// HandleGet returns the local record for one content hash.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	hash, err := domain.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid content hash"))
		return
	}

	record, err := h.service.FindByHash(ctx, hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "get certificate failed", "error", err, "request_id", requestID, "content_hash", hash)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(record))
}

// HandleRevoke revokes a certificate on the ledger and locally.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	hash, err := domain.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid content hash"))
		return
	}

	record, err := h.service.Revoke(ctx, hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke certificate failed", "error", err, "request_id", requestID, "content_hash", hash)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(record))
}

// HandleListByWallet lists active certificates held by one wallet.
func (h *Handler) HandleListByWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	wallet, err := domain.ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid wallet address"))
		return
	}

	records, err := h.service.ListBySubjectWallet(ctx, wallet)
	if err != nil {
		h.logger.ErrorContext(ctx, "list certificates failed", "error", err, "request_id", requestID, "wallet", wallet)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCertificateListResponse(records))
}

// HandleListAll lists every record, revoked included, newest first.
func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = parsed
	}

	records, err := h.service.ListAll(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list all certificates failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCertificateListResponse(records))
}

func (h *Handler) toCommand(req *IssueCertificateRequest) (*service.IssueRequest, error) {
	subjectKey, err := hasher.Derive(req.SubjectIdentityNumber)
	if err != nil {
		return nil, err
	}
	subjectWallet, err := domain.ParseWalletAddress(req.SubjectWalletAddress)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid subject_wallet_address")
	}
	issuerWallet, err := domain.ParseWalletAddress(req.IssuerWalletAddress)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid issuer_wallet_address")
	}

	cmd := &service.IssueRequest{
		SubjectKey:    subjectKey,
		SubjectWallet: subjectWallet,
		IssuerWallet:  issuerWallet,
		Title:         req.Title,
	}

	document, err := req.DecodeDocument()
	if err != nil {
		return nil, err
	}
	if document != nil {
		cmd.Document = document
		return cmd, nil
	}

	hash, err := domain.ParseContentHash(req.ContentHash)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid content_hash")
	}
	cmd.ContentHash = hash
	return cmd, nil
}
