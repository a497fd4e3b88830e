// @title OpenAgency Onboarding API
// @version 1.0.0
// @description Multi-tenant agency onboarding control plane

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey OperatorAuth
// @in header
// @name Authorization

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/provision"
	"github.com/openagency/openagency/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	saga        *provision.Saga
	invitations *invitation.Service
	tenants     tenant.Repository
	users       identity.UserRepository
	auditLogger audit.Logger
	authConfig  AuthConfig
	pinger      Pinger
}

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuthConfig holds operator bearer-token configuration
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	saga *provision.Saga,
	invitations *invitation.Service,
	tenants tenant.Repository,
	users identity.UserRepository,
	auditLogger audit.Logger,
	authConfig AuthConfig,
	pinger Pinger,
) *Handler {
	return &Handler{
		saga:        saga,
		invitations: invitations,
		tenants:     tenants,
		users:       users,
		auditLogger: auditLogger,
		authConfig:  authConfig,
		pinger:      pinger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Public setup endpoint: invitees authenticate with the token itself,
	// never with operator credentials.
	r.Post("/setup/complete", h.CompleteSetup)

	// Operator API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.OperatorAuthMiddleware)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/provision", h.ProvisionTenant)
			r.Get("/", h.ListTenants)
			r.Get("/slug/{slug}", h.GetTenantBySlug)

			r.Route("/{tenantID}", func(r chi.Router) {
				r.Get("/", h.GetTenant)
				r.Get("/invitations", h.ListTenantInvitations)
			})
		})

		r.Get("/users/{userID}", h.GetUser)

		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", h.CreateInvitation)
			r.Route("/{invitationID}", func(r chi.Router) {
				r.Get("/", h.GetInvitation)
				r.Post("/resend", h.ResendInvitation)
				r.Delete("/", h.CancelInvitation)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service and its database are up
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": "openagency",
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "openagency",
	})
}

// respondDomainError maps domain sentinels onto HTTP status codes. The
// not-found / conflict / expired distinction is part of the API contract:
// clients offer a resend path only on expired.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invitation.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, "password does not meet security requirements")
	case errors.Is(err, invitation.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "invalid invitation role")
	case errors.Is(err, invitation.ErrNotFound):
		respondError(w, http.StatusNotFound, "invitation not found")
	case errors.Is(err, invitation.ErrTokenNotFound):
		respondError(w, http.StatusNotFound, "invitation token not found")
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, invitation.ErrExpired):
		respondError(w, http.StatusGone, "invitation token expired")
	case errors.Is(err, invitation.ErrEmailTaken):
		respondError(w, http.StatusConflict, "email already belongs to a user or pending invitation")
	case errors.Is(err, invitation.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, "invitation already used or cancelled")
	case errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, tenant.ErrSlugTaken):
		respondError(w, http.StatusConflict, "tenant slug already in use")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
