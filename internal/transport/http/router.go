// Package httptransport assembles the HTTP surface: public credential and
// verification endpoints, the token-guarded admin API, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "credlock/internal/admin/handler"
	certificatehandler "credlock/internal/certificate/handler"
	identityhandler "credlock/internal/identity/handler"
	issuerhandler "credlock/internal/issuer/handler"
	"credlock/internal/platform/middleware"
	verifyhandler "credlock/internal/verify/handler"
	"credlock/pkg/platform/httputil"
)

const defaultRequestTimeout = 30 * time.Second

// Deps carries everything the router mounts. Nil handlers are skipped so
// partial wiring in tests stays cheap.
type Deps struct {
	Logger      *slog.Logger
	Identity    *identityhandler.Handler
	Certificate *certificatehandler.Handler
	Issuer      *issuerhandler.Handler
	Verify      *verifyhandler.Handler
	Admin       *adminhandler.Handler

	// AdminToken guards /admin. Empty hides the admin API entirely.
	AdminToken string

	// Health reports readiness of the engine's dependencies.
	Health func(ctx context.Context) error

	RequestTimeout time.Duration
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	if deps.Identity != nil {
		deps.Identity.Register(r)
	}
	if deps.Certificate != nil {
		deps.Certificate.Register(r)
	}
	if deps.Verify != nil {
		deps.Verify.Register(r)
	}
	if deps.Issuer != nil {
		deps.Issuer.RegisterPublic(r)
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(deps.AdminToken, deps.Logger))
		if deps.Issuer != nil {
			deps.Issuer.RegisterAdmin(admin)
		}
		if deps.Certificate != nil {
			deps.Certificate.RegisterAdmin(admin)
		}
		if deps.Admin != nil {
			deps.Admin.Register(admin)
		}
	})

	return r
}

func handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
