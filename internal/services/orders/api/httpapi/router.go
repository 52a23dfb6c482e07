// Package httpapi exposes the order command, query, and upload surfaces
// over HTTP. Every order route is tenant-scoped by the bearer token; the
// handlers never accept a tenant id from the request body or query.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/query"
	"github.com/commerceloop/orderflow/internal/services/orders/uploads"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TenantVerifier resolves the tenant identity from an access token.
type TenantVerifier interface {
	Verify(token string) (string, error)
}

// Config wires the router's collaborators.
type Config struct {
	Orders   *domain.Service
	Queries  *query.Service
	Uploads  *uploads.Service
	Verifier TenantVerifier
	// WSHandler, when set, is mounted at /ws. It performs its own auth.
	WSHandler http.Handler
}

// New builds the orders HTTP router.
func New(cfg Config) http.Handler {
	h := &handler{
		orders:  cfg.Orders,
		queries: cfg.Queries,
		uploads: cfg.Uploads,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if cfg.WSHandler != nil {
		r.Handle("/ws", cfg.WSHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(tenantAuth(cfg.Verifier))
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Post("/uploads/presign", h.presignUpload)
	})

	return r
}

type tenantIDContextKey struct{}

// tenantAuth rejects requests without a verifiable tenant identity and
// stores the tenant id on the request context.
func tenantAuth(verifier TenantVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "authentication is not configured")
				return
			}
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			tenantID, err := verifier.Verify(token)
			if err != nil {
				slog.InfoContext(r.Context(), "request unauthorized",
					"remote", r.RemoteAddr, "error", err)
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			ctx := context.WithValue(r.Context(), tenantIDContextKey{}, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func tenantIDFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantIDContextKey{}).(string)
	return tenantID
}
