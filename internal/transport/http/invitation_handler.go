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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/observability/logger"
)

// InvitationResponse is the API view of an invitation. Status is derived
// against the service clock so a past-expiry invitation reads as expired
// without any stored state flip. Token material is never echoed.
type InvitationResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FullName        string     `json:"full_name"`
	Role            string     `json:"role"`
	TenantID        *string    `json:"tenant_id,omitempty"`
	TenantName      string     `json:"tenant_name"`
	InvitedBy       string     `json:"invited_by"`
	TokenGeneration int        `json:"token_generation"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	Status          string     `json:"status"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	UserID          *string    `json:"user_id,omitempty"`
}

func invitationView(inv *invitation.Invitation, now time.Time) InvitationResponse {
	return InvitationResponse{
		ID:              inv.ID,
		Email:           inv.Email,
		FullName:        inv.FullName,
		Role:            inv.Role,
		TenantID:        inv.TenantID,
		TenantName:      inv.TenantName,
		InvitedBy:       inv.InvitedBy,
		TokenGeneration: inv.TokenGeneration,
		IssuedAt:        inv.IssuedAt,
		ExpiresAt:       inv.ExpiresAt,
		Status:          inv.DerivedStatus(now),
		ActivatedAt:     inv.ActivatedAt,
		UserID:          inv.UserID,
	}
}

// CreateInvitationRequest represents a standalone invitation
type CreateInvitationRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Email    string `json:"email" binding:"required" example:"invitee@example.com"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required" example:"member"`
}

// CreateInvitation invites a person into an existing tenant
// @Summary Create Invitation
// @Description Issue an invitation into an existing tenant
// @Tags Invitations
// @Accept json
// @Produce json
// @Security OperatorAuth
// @Param request body CreateInvitationRequest true "Invitation Data"
// @Success 201 {object} InvitationResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations [post]
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenants.GetByID(r.Context(), req.TenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	inv, err := h.invitations.Invite(r.Context(), invitation.IssueParams{
		TenantID:   &t.ID,
		TenantName: t.Name,
		Email:      req.Email,
		FullName:   req.FullName,
		Role:       req.Role,
		InvitedBy:  GetOperatorID(r.Context()),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create invitation",
			logger.Error(err),
			logger.TenantID(req.TenantID),
			logger.Email(req.Email),
		)
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, invitationView(inv, h.invitations.Now()))
}

// GetInvitation returns one invitation
// @Summary Get Invitation
// @Description Retrieve an invitation by id with derived status
// @Tags Invitations
// @Produce json
// @Security OperatorAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 404 {object} map[string]string
// @Router /invitations/{invitationID} [get]
func (h *Handler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.Get(r.Context(), chi.URLParam(r, "invitationID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, invitationView(inv, h.invitations.Now()))
}

// ResendInvitation replaces the token material of a pending invitation
// @Summary Resend Invitation
// @Description Mint a new token and a fresh expiry window; the previous token is permanently invalidated
// @Tags Invitations
// @Produce json
// @Security OperatorAuth
// @Param invitationID path string true "Invitation ID"
// @Success 200 {object} InvitationResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations/{invitationID}/resend [post]
func (h *Handler) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.Resend(r.Context(), chi.URLParam(r, "invitationID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, invitationView(inv, h.invitations.Now()))
}

// CancelInvitation revokes a pending invitation
// @Summary Cancel Invitation
// @Description Revoke a pending invitation; its token stops working immediately
// @Tags Invitations
// @Produce json
// @Security OperatorAuth
// @Param invitationID path string true "Invitation ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invitations/{invitationID} [delete]
func (h *Handler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	if err := h.invitations.Cancel(r.Context(), chi.URLParam(r, "invitationID")); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTenantInvitations lists a tenant's invitations
// @Summary List Tenant Invitations
// @Description List all invitations for a tenant with derived statuses
// @Tags Invitations
// @Produce json
// @Security OperatorAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} map[string]any
// @Router /tenants/{tenantID}/invitations [get]
func (h *Handler) ListTenantInvitations(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	invs, err := h.invitations.ListByTenant(r.Context(), tenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	now := h.invitations.Now()
	views := make([]InvitationResponse, 0, len(invs))
	for _, inv := range invs {
		views = append(views, invitationView(inv, now))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"invitations": views,
		"total":       len(views),
	})
}

// CompleteSetupRequest carries the invitee's token and chosen password
type CompleteSetupRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CompleteSetup consumes an invitation token and activates the account
// @Summary Complete Setup
// @Description Consume a setup token, create the account, and activate the invitation
// @Tags Setup
// @Accept json
// @Produce json
// @Param request body CompleteSetupRequest true "Setup Data"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 410 {object} map[string]string
// @Router /setup/complete [post]
func (h *Handler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req CompleteSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, user, err := h.invitations.CompleteSetup(r.Context(), req.Token, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeInvitationAccepted,
		TenantID:  user.TenantID,
		ActorID:   user.ID,
		Resource:  inv.ID,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"invitation": invitationView(inv, h.invitations.Now()),
		"user_id":    user.ID,
		"tenant_id":  user.TenantID,
	})
}
