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

package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/id"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/observability/logger"
	"github.com/openagency/openagency/internal/tenant"
	"github.com/openagency/openagency/internal/token"
)

// Descriptor describes the tenant to onboard.
type Descriptor struct {
	Name         string            `json:"name"`
	Slug         string            `json:"slug,omitempty"`
	Plan         string            `json:"plan"`
	ManagerName  string            `json:"manager_name"`
	ManagerEmail string            `json:"manager_email"`
	Branding     map[string]string `json:"branding,omitempty"`
}

// Result is the saga's success report. NotificationSent is false when the
// welcome email failed; the invitation is still valid and resendable.
type Result struct {
	Tenant            *tenant.Tenant         `json:"tenant"`
	ManagerInvitation *invitation.Invitation `json:"manager_invitation"`
	Outcome           Outcome                `json:"outcome"`
	NotificationSent  bool                   `json:"notification_sent"`
}

// Store is the transactional unit of work for saga steps 2 and 3: tenant row
// and manager invitation land together or not at all.
type Store interface {
	CreateTenantWithInvitation(ctx context.Context, t *tenant.Tenant, inv *invitation.Invitation) error
}

// Saga orchestrates tenant onboarding:
//
//  1. external resource creation — best effort, placeholder fallback
//  2. tenant record — transactional, hard failure aborts
//  3. manager invitation — same transaction as 2
//  4. welcome notification — non-fatal, reported via NotificationSent
type Saga struct {
	provisioner  Provisioner
	store        Store
	users        identity.UserRepository
	gen          *token.Generator
	policy       token.Policy
	gateway      notify.Gateway
	setupBaseURL string
	auditLogger  audit.Logger

	now func() time.Time
}

// NewSaga creates the provisioning saga
func NewSaga(
	provisioner Provisioner,
	store Store,
	users identity.UserRepository,
	gen *token.Generator,
	policy token.Policy,
	gateway notify.Gateway,
	setupBaseURL string,
	auditLogger audit.Logger,
) *Saga {
	return &Saga{
		provisioner:  provisioner,
		store:        store,
		users:        users,
		gen:          gen,
		policy:       policy,
		gateway:      gateway,
		setupBaseURL: setupBaseURL,
		auditLogger:  auditLogger,
		now:          time.Now,
	}
}

// ProvisionTenant runs the onboarding saga for one descriptor.
func (s *Saga) ProvisionTenant(ctx context.Context, d Descriptor) (*Result, error) {
	if err := s.validate(&d); err != nil {
		return nil, err
	}

	// Precondition: the manager email must not already belong to a user.
	// Rejected before any side effect.
	if _, err := s.users.GetByEmail(ctx, d.ManagerEmail); err == nil {
		return nil, invitation.ErrEmailTaken
	} else if err != identity.ErrUserNotFound {
		return nil, fmt.Errorf("failed to check manager email: %w", err)
	}

	now := s.now()

	// Step 1: external resources, best effort. A third-party outage must not
	// block tenant and invitation creation.
	outcome := s.provisionResources(ctx, d)

	// Steps 2 and 3: tenant row plus manager invitation, one transaction.
	t := &tenant.Tenant{
		ID:     id.NewUUIDv7(),
		Name:   d.Name,
		Slug:   d.Slug,
		Plan:   d.Plan,
		Status: tenant.StatusPending,
		Provisioning: tenant.ProvisioningRecord{
			Placeholder:   outcome.Placeholder,
			Reason:        outcome.Reason,
			RepoRefs:      outcome.Resources.RepoRefs,
			DBRef:         outcome.Resources.DBRef,
			DeployRefs:    outcome.Resources.DeployRefs,
			ProvisionedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	inv, err := invitation.New(s.gen, s.policy, invitation.IssueParams{
		TenantID:   &t.ID,
		TenantName: t.Name,
		Email:      d.ManagerEmail,
		FullName:   d.ManagerName,
		Role:       invitation.RoleAdministrator,
		InvitedBy:  "platform",
	}, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateTenantWithInvitation(ctx, t, inv); err != nil {
		// Hard failure: nothing downstream runs, nothing partial persists
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantProvisioned,
		TenantID: t.ID,
		Resource: t.Slug,
		Metadata: map[string]any{audit.AttrPlaceholder: outcome.Placeholder, "plan": t.Plan},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvitationIssued,
		TenantID: t.ID,
		Resource: inv.ID,
		Metadata: map[string]any{"email": inv.Email, "role": inv.Role},
	})

	// Step 4: welcome notification, non-fatal.
	sent := s.sendWelcome(ctx, t, inv)

	return &Result{
		Tenant:            t,
		ManagerInvitation: inv,
		Outcome:           outcome,
		NotificationSent:  sent,
	}, nil
}

func (s *Saga) validate(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: tenant name is required", invitation.ErrValidation)
	}
	if d.ManagerName == "" {
		return fmt.Errorf("%w: manager name is required", invitation.ErrValidation)
	}
	if d.ManagerEmail == "" {
		return fmt.Errorf("%w: manager email is required", invitation.ErrValidation)
	}
	d.ManagerEmail = strings.TrimSpace(strings.ToLower(d.ManagerEmail))
	if d.Slug == "" {
		d.Slug = Slugify(d.Name)
	}
	if d.Plan == "" {
		d.Plan = tenant.PlanStarter
	}
	if !tenant.ValidPlan(d.Plan) {
		return fmt.Errorf("%w: unknown plan %q", invitation.ErrValidation, d.Plan)
	}
	return nil
}

func (s *Saga) provisionResources(ctx context.Context, d Descriptor) Outcome {
	rs, err := s.provisioner.Provision(ctx, d)
	if err != nil {
		slog.WarnContext(ctx, "resource provisioning failed, substituting placeholders",
			logger.Component("provision"),
			logger.String("slug", d.Slug),
			logger.Error(err),
		)
		return PlaceholderOutcome(PlaceholderResources(d.Slug), err.Error())
	}
	return RealOutcome(rs)
}

func (s *Saga) sendWelcome(ctx context.Context, t *tenant.Tenant, inv *invitation.Invitation) bool {
	tok := ""
	if inv.Token != nil {
		tok = *inv.Token
	}

	msg := notify.Message{
		Template:  notify.TemplateInviteManager,
		Recipient: inv.Email,
		Ref:       notify.NewRef(),
		Params: map[string]string{
			"invitee_name": inv.FullName,
			"tenant_name":  t.Name,
			"setup_link":   notify.SetupLink(s.setupBaseURL, tok, inv.Role),
			"expires_at":   inv.ExpiresAt.Format(time.RFC3339),
		},
	}

	if _, err := s.gateway.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "welcome notification failed",
			logger.TenantID(t.ID),
			logger.InvitationID(inv.ID),
			logger.Error(err),
		)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeNotificationFailed,
			TenantID: t.ID,
			Resource: inv.ID,
			Metadata: map[string]any{audit.AttrTemplate: notify.TemplateInviteManager, audit.AttrReason: err.Error()},
		})
		return false
	}
	return true
}

// Slugify derives a URL-safe slug from a tenant display name.
func Slugify(name string) string {
	var b strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
