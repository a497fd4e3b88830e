// Copyright 2026 The OpenAgency Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/openagency/openagency/internal/observability/logger"
	"github.com/openagency/openagency/internal/provision"
)

// ProvisionTenant runs the onboarding saga for a new agency
// @Summary Provision Tenant
// @Description Create a tenant with external resources (placeholder fallback on upstream failure) and its manager invitation
// @Tags Tenants
// @Accept json
// @Produce json
// @Security OperatorAuth
// @Param request body provision.Descriptor true "Tenant Descriptor"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants/provision [post]
func (h *Handler) ProvisionTenant(w http.ResponseWriter, r *http.Request) {
	var d provision.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.saga.ProvisionTenant(r.Context(), d)
	if err != nil {
		slog.ErrorContext(r.Context(), "tenant provisioning failed",
			logger.Error(err),
			logger.String("tenant_name", d.Name),
		)
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant":             result.Tenant,
		"manager_invitation": invitationView(result.ManagerInvitation, h.invitations.Now()),
		"placeholder":        result.Outcome.Placeholder,
		"notification_sent":  result.NotificationSent,
	})
}

// GetTenant returns one tenant
// @Summary Get Tenant
// @Description Retrieve a tenant by id, provisioning record included
// @Tags Tenants
// @Produce json
// @Security OperatorAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetByID(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// GetTenantBySlug returns one tenant looked up by slug
// @Summary Get Tenant By Slug
// @Description Retrieve a tenant by its URL-safe slug
// @Tags Tenants
// @Produce json
// @Security OperatorAuth
// @Param slug path string true "Tenant Slug"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenants/slug/{slug} [get]
func (h *Handler) GetTenantBySlug(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// ListTenants lists tenants, newest first
// @Summary List Tenants
// @Description List tenants with pagination
// @Tags Tenants
// @Produce json
// @Security OperatorAuth
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]any
// @Router /tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	tenants, err := h.tenants.List(r.Context(), limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenants": tenants,
		"total":   len(tenants),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
