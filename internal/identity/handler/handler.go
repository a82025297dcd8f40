package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credlock/internal/identity/hasher"
	"credlock/internal/identity/models"
	"credlock/internal/platform/middleware"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/httputil"
)

// Service defines the identity operations the HTTP layer needs. It works in
// derived identity keys; the raw number is consumed by the hasher inside this
// package and goes no further.
type Service interface {
	Register(ctx context.Context, key domain.IdentityKey, displayName string, wallet domain.WalletAddress) (*models.Identity, error)
	Lookup(ctx context.Context, key domain.IdentityKey) (*models.Identity, error)
	LookupByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error)
	MigrateWallet(ctx context.Context, key domain.IdentityKey, newWallet domain.WalletAddress) (*models.Identity, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/identities", h.HandleRegister)
	r.Post("/identities/lookup", h.HandleLookup)
	r.Get("/identities/wallet/{address}", h.HandleLookupByWallet)
	r.Post("/identities/migrate-wallet", h.HandleMigrateWallet)
}

// HandleRegister registers a new identity keyed by the derived identity hash.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	key, err := hasher.Derive(req.IdentityNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wallet, err := domain.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid wallet_address"))
		return
	}

	identity, err := h.service.Register(ctx, key, req.DisplayName, wallet)
	if err != nil {
		h.logger.ErrorContext(ctx, "register identity failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// HandleLookup resolves an identity from its raw number. POST keeps the
// number out of URLs and access logs.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LookupRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	key, err := hasher.Derive(req.IdentityNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	identity, err := h.service.Lookup(ctx, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "lookup identity failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// HandleLookupByWallet resolves an identity from its bound wallet address.
func (h *Handler) HandleLookupByWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	wallet, err := domain.ParseWalletAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid wallet address"))
		return
	}

	identity, err := h.service.LookupByWallet(ctx, wallet)
	if err != nil {
		h.logger.ErrorContext(ctx, "lookup identity by wallet failed", "error", err, "request_id", requestID, "wallet", wallet)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// HandleMigrateWallet rebinds an identity to a new wallet address.
func (h *Handler) HandleMigrateWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[MigrateWalletRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	key, err := hasher.Derive(req.IdentityNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wallet, err := domain.ParseWalletAddress(req.NewWalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid new_wallet_address"))
		return
	}

	identity, err := h.service.MigrateWallet(ctx, key, wallet)
	if err != nil {
		h.logger.ErrorContext(ctx, "migrate wallet failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}
