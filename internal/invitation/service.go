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

package invitation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/id"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/observability/logger"
	"github.com/openagency/openagency/internal/token"
)

// Activator applies the activation write set atomically: invitation to
// active, user plus credentials inserted, and for administrators the tenant
// manager pointer. Implemented by the postgres onboarding store.
type Activator interface {
	Activate(ctx context.Context, inv *Invitation, user *identity.User, passwordHash string) error
}

// IssueParams describes a new invitation.
type IssueParams struct {
	TenantID   *string
	TenantName string
	Email      string
	FullName   string
	Role       string
	InvitedBy  string
}

// New builds an invited-status invitation with freshly minted token
// material. Shared by the standalone invite operation and the provisioning
// saga (which persists the row inside its own transaction).
func New(gen *token.Generator, policy token.Policy, p IssueParams, now time.Time) (*Invitation, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if p.FullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	if !ValidRole(p.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	tok, err := gen.New()
	if err != nil {
		return nil, fmt.Errorf("failed to mint invitation token: %w", err)
	}

	return &Invitation{
		ID:              id.NewUUIDv7(),
		Email:           email,
		FullName:        p.FullName,
		Role:            p.Role,
		TenantID:        p.TenantID,
		TenantName:      p.TenantName,
		InvitedBy:       p.InvitedBy,
		Token:           &tok,
		TokenGeneration: 1,
		IssuedAt:        now,
		ExpiresAt:       policy.ExpiryFrom(now, p.Role),
		Status:          StatusInvited,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Service provides the invitation token lifecycle
type Service struct {
	repo         Repository
	users        identity.UserRepository
	activator    Activator
	gen          *token.Generator
	policy       token.Policy
	hasher       *identity.PasswordHasher
	gateway      notify.Gateway
	setupBaseURL string
	auditLogger  audit.Logger

	now func() time.Time
}

// NewService creates a new invitation lifecycle service
func NewService(
	repo Repository,
	users identity.UserRepository,
	activator Activator,
	gen *token.Generator,
	policy token.Policy,
	hasher *identity.PasswordHasher,
	gateway notify.Gateway,
	setupBaseURL string,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		repo:         repo,
		users:        users,
		activator:    activator,
		gen:          gen,
		policy:       policy,
		hasher:       hasher,
		gateway:      gateway,
		setupBaseURL: setupBaseURL,
		auditLogger:  auditLogger,
		now:          time.Now,
	}
}

// Invite issues a standalone invitation into an existing tenant.
func (s *Service) Invite(ctx context.Context, p IssueParams) (*Invitation, error) {
	if p.TenantID == nil || *p.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}

	now := s.now()
	inv, err := New(s.gen, s.policy, p, now)
	if err != nil {
		return nil, err
	}

	// Reject before any side effect when the email already belongs to an
	// activated account.
	if _, err := s.users.GetByEmail(ctx, inv.Email); err == nil {
		return nil, ErrEmailTaken
	} else if err != identity.ErrUserNotFound {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	// Same for an outstanding invitation. The partial unique index behind
	// Create is the authority; this check just avoids burning an id and a
	// token on a doomed insert.
	if _, err := s.repo.GetPendingByEmail(ctx, inv.Email); err == nil {
		return nil, ErrEmailTaken
	} else if err != ErrNotFound {
		return nil, fmt.Errorf("failed to check pending invitations: %w", err)
	}

	// Pending-invitation uniqueness is owned by the storage layer; Create
	// surfaces the unique violation as ErrEmailTaken.
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvitationIssued,
		TenantID: deref(inv.TenantID),
		ActorID:  inv.InvitedBy,
		Resource: inv.ID,
		Metadata: map[string]any{"email": inv.Email, "role": inv.Role},
	})

	s.sendInviteEmail(ctx, inv)

	return inv, nil
}

// CompleteSetup consumes a token and activates the invitee's account.
// Error precedence: not found, then conflict, then expired.
func (s *Service) CompleteSetup(ctx context.Context, rawToken, password string) (*Invitation, *identity.User, error) {
	if rawToken == "" {
		return nil, nil, fmt.Errorf("%w: token is required", ErrValidation)
	}
	if !identity.IsStrongPassword(password) {
		return nil, nil, identity.ErrWeakPassword
	}

	inv, err := s.repo.GetByToken(ctx, rawToken)
	if err != nil {
		return nil, nil, err
	}

	if inv.Status != StatusInvited {
		return nil, nil, ErrAlreadyResolved
	}

	now := s.now()
	if inv.IsExpired(now) {
		// Distinct from not-found so the caller can offer a resend path
		return nil, nil, ErrExpired
	}

	if inv.TenantID == nil {
		return nil, nil, fmt.Errorf("invitation %s has no tenant linkage", inv.ID)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &identity.User{
		ID:        id.NewUUIDv7(),
		TenantID:  *inv.TenantID,
		Email:     inv.Email,
		FullName:  inv.FullName,
		Role:      inv.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.activator.Activate(ctx, inv, user, passwordHash); err != nil {
		return nil, nil, err
	}

	inv.Status = StatusActive
	inv.Token = nil
	inv.ActivatedAt = &now
	inv.UserID = &user.ID
	inv.UpdatedAt = now

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvitationAccepted,
		TenantID: *inv.TenantID,
		ActorID:  user.ID,
		Resource: inv.ID,
		Metadata: map[string]any{"email": inv.Email, "role": inv.Role},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		TenantID: user.TenantID,
		ActorID:  user.ID,
		Resource: user.ID,
	})

	return inv, user, nil
}

// Resend replaces the token material: brand-new token, new expiry computed
// from now, generation bumped. The old token is permanently invalid even if
// it had time left.
func (s *Service) Resend(ctx context.Context, invitationID string) (*Invitation, error) {
	inv, err := s.repo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusInvited {
		return nil, ErrAlreadyResolved
	}

	tok, err := s.gen.New()
	if err != nil {
		return nil, fmt.Errorf("failed to mint invitation token: %w", err)
	}

	now := s.now()
	generation := inv.TokenGeneration + 1
	expiresAt := s.policy.ExpiryFrom(now, inv.Role)

	if err := s.repo.ReplaceToken(ctx, inv.ID, tok, generation, now, expiresAt); err != nil {
		return nil, err
	}

	inv.Token = &tok
	inv.TokenGeneration = generation
	inv.IssuedAt = now
	inv.ExpiresAt = expiresAt
	inv.UpdatedAt = now

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvitationResent,
		TenantID: deref(inv.TenantID),
		Resource: inv.ID,
		Metadata: map[string]any{"email": inv.Email, "generation": generation},
	})

	s.sendInviteEmail(ctx, inv)

	return inv, nil
}

// Cancel revokes an invitation. Only legal while status is invited; a
// resolved invitation is a conflict, not a no-op.
func (s *Service) Cancel(ctx context.Context, invitationID string) error {
	inv, err := s.repo.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.Status != StatusInvited {
		return ErrAlreadyResolved
	}

	if err := s.repo.Cancel(ctx, inv.ID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvitationCancelled,
		TenantID: deref(inv.TenantID),
		Resource: inv.ID,
		Metadata: map[string]any{"email": inv.Email},
	})

	return nil
}

// Get retrieves an invitation by id
func (s *Service) Get(ctx context.Context, invitationID string) (*Invitation, error) {
	return s.repo.GetByID(ctx, invitationID)
}

// ListByTenant lists a tenant's invitations
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]*Invitation, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Now exposes the service clock so views can derive expired status with the
// same time source the lifecycle uses.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) sendInviteEmail(ctx context.Context, inv *Invitation) {
	template := notify.TemplateInviteMember
	if inv.Role == RoleAdministrator {
		template = notify.TemplateInviteManager
	}

	msg := notify.Message{
		Template:  template,
		Recipient: inv.Email,
		Ref:       notify.NewRef(),
		Params: map[string]string{
			"invitee_name": inv.FullName,
			"tenant_name":  inv.TenantName,
			"invited_by":   inv.InvitedBy,
			"setup_link":   notify.SetupLink(s.setupBaseURL, deref(inv.Token), inv.Role),
			"expires_at":   inv.ExpiresAt.Format(time.RFC3339),
		},
	}

	if _, err := s.gateway.Send(ctx, msg); err != nil {
		// Non-fatal: the invitation row is valid and can be resent
		slog.WarnContext(ctx, "invitation email failed",
			logger.InvitationID(inv.ID),
			logger.Template(template),
			logger.Error(err),
		)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeNotificationFailed,
			TenantID: deref(inv.TenantID),
			Resource: inv.ID,
			Metadata: map[string]any{audit.AttrTemplate: template, audit.AttrReason: err.Error()},
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
