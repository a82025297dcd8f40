package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"credlock/internal/issuer/models"
	"credlock/internal/platform/middleware"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/httputil"
)

// adminActorHeader names the operator acting through the admin API. The value
// lands in the audit trail; it defaults when absent.
const adminActorHeader = "X-Admin-Actor"

// Service defines the issuer authorization operations the HTTP layer needs.
type Service interface {
	SubmitRequest(ctx context.Context, name string, wallet domain.WalletAddress) (*models.Request, error)
	Approve(ctx context.Context, requestID uuid.UUID, actor string) (*models.Issuer, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor string) (*models.Request, error)
	AddIssuer(ctx context.Context, name string, wallet domain.WalletAddress, actor string) (*models.Issuer, error)
	RevokeIssuer(ctx context.Context, wallet domain.WalletAddress, actor string) (*models.Issuer, error)
	ListRequests(ctx context.Context, status models.RequestStatus) ([]*models.Request, error)
	ListIssuers(ctx context.Context) ([]*models.Issuer, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic wires the self-service endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/issuers/requests", h.HandleSubmitRequest)
}

// RegisterAdmin wires the operator endpoints; the router guards them with the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/issuers", h.HandleListIssuers)
	r.Post("/issuers", h.HandleAddIssuer)
	r.Post("/issuers/{address}/revoke", h.HandleRevokeIssuer)
	r.Get("/issuers/requests", h.HandleListRequests)
	r.Post("/issuers/requests/{id}/approve", h.HandleApprove)
	r.Post("/issuers/requests/{id}/reject", h.HandleReject)
}

// HandleSubmitRequest accepts a self-service application for the issuer role.
func (h *Handler) HandleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequestRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	wallet, err := domain.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid wallet_address"))
		return
	}

	request, err := h.service.SubmitRequest(ctx, req.Name, wallet)
	if err != nil {
		h.logger.ErrorContext(ctx, "submit issuer request failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toRequestResponse(request))
}

// HandleApprove approves a pending request and grants the ledger role.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	issuer, err := h.service.Approve(ctx, id, actor(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "approve issuer request failed", "error", err, "request_id", requestID, "issuer_request_id", id)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(issuer))
}

// HandleReject rejects a pending request. No ledger interaction happens.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	request, err := h.service.Reject(ctx, id, actor(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "reject issuer request failed", "error", err, "request_id", requestID, "issuer_request_id", id)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

// HandleAddIssuer whitelists an issuer directly, bypassing the request flow.
func (h *Handler) HandleAddIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddIssuerRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	wallet, err := domain.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid wallet_address"))
		return
	}

	issuer, err := h.service.AddIssuer(ctx, req.Name, wallet, actor(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "add issuer failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toIssuerResponse(issuer))
}

// HandleRevokeIssuer revokes the issuer role on the ledger and locally.
func (h *Handler) HandleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	wallet, err := domain.ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid wallet address"))
		return
	}

	issuer, err := h.service.RevokeIssuer(ctx, wallet, actor(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke issuer failed", "error", err, "request_id", requestID, "wallet", wallet)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIssuerResponse(issuer))
}

// HandleListRequests lists requests, optionally filtered by status.
func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	status := models.RequestStatus(r.URL.Query().Get("status"))
	requests, err := h.service.ListRequests(ctx, status)
	if err != nil {
		h.logger.ErrorContext(ctx, "list issuer requests failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	out := make([]*RequestResponse, len(requests))
	for i, request := range requests {
		out[i] = toRequestResponse(request)
	}
	httputil.WriteJSON(w, http.StatusOK, &RequestListResponse{Requests: out, Count: len(out)})
}

// HandleListIssuers lists the issuer roster.
func (h *Handler) HandleListIssuers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	issuers, err := h.service.ListIssuers(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list issuers failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	out := make([]*IssuerResponse, len(issuers))
	for i, issuer := range issuers {
		out[i] = toIssuerResponse(issuer)
	}
	httputil.WriteJSON(w, http.StatusOK, &IssuerListResponse{Issuers: out, Count: len(out)})
}

func actor(r *http.Request) string {
	if v := r.Header.Get(adminActorHeader); v != "" {
		return v
	}
	return "admin"
}
