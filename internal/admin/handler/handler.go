// Package handler exposes the operator surface: the audit trail and a small
// stats endpoint for dashboards.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"credlock/internal/platform/middleware"
	dErrors "credlock/pkg/domain-errors"
	auditmodels "credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/httputil"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
	recentEventCount  = 15
)

// AuditReader exposes the durable audit trail.
type AuditReader interface {
	List(ctx context.Context, kind auditmodels.Kind, limit int) ([]auditmodels.Event, error)
	Count(ctx context.Context) (int64, error)
}

// Counter reports the size of one collection.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

type Handler struct {
	audit        AuditReader
	identities   Counter
	certificates Counter
	issuers      Counter
	logger       *slog.Logger
}

func New(audit AuditReader, identities, certificates, issuers Counter, logger *slog.Logger) *Handler {
	return &Handler{
		audit:        audit,
		identities:   identities,
		certificates: certificates,
		issuers:      issuers,
		logger:       logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleListAudit)
	r.Get("/stats", h.HandleStats)
}

// HandleListAudit returns audit events, newest first, optionally filtered by
// kind.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAuditLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = parsed
	}
	kind := auditmodels.Kind(r.URL.Query().Get("kind"))

	events, err := h.audit.List(ctx, kind, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list audit events failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// StatsResponse summarizes engine state for dashboards.
type StatsResponse struct {
	Identities   int64               `json:"identities"`
	Certificates int64               `json:"certificates"`
	Issuers      int64               `json:"issuers"`
	AuditEvents  int64               `json:"audit_events"`
	Recent       []auditmodels.Event `json:"recent_events"`
}

// HandleStats reports collection sizes plus the most recent audit events.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	stats := StatsResponse{}
	var err error
	if stats.Identities, err = h.identities.Count(ctx); err != nil {
		h.fail(w, ctx, requestID, "identity count failed", err)
		return
	}
	if stats.Certificates, err = h.certificates.Count(ctx); err != nil {
		h.fail(w, ctx, requestID, "certificate count failed", err)
		return
	}
	if stats.Issuers, err = h.issuers.Count(ctx); err != nil {
		h.fail(w, ctx, requestID, "issuer count failed", err)
		return
	}
	if stats.AuditEvents, err = h.audit.Count(ctx); err != nil {
		h.fail(w, ctx, requestID, "audit count failed", err)
		return
	}
	if stats.Recent, err = h.audit.List(ctx, "", recentEventCount); err != nil {
		h.fail(w, ctx, requestID, "recent audit events failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &stats)
}

func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, requestID, msg string, err error) {
	h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestID)
	httputil.WriteError(w, err)
}
