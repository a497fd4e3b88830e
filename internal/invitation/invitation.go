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
	"errors"
	"time"
)

// Roles an invitee can be offered
const (
	RoleAdministrator = "administrator"
	RoleSeniorMember  = "senior_member"
	RoleMember        = "member"
)

// Stored statuses. Expired is never written: it is derived from the clock so
// the lifecycle, the scheduler, and status views cannot drift apart.
const (
	StatusInvited   = "invited"
	StatusActive    = "active"
	StatusCancelled = "cancelled"

	// StatusExpired is a derived view value only, see DerivedStatus.
	StatusExpired = "expired"
)

// Domain errors
var (
	ErrNotFound        = errors.New("invitation not found")
	ErrTokenNotFound   = errors.New("invitation token not found")
	ErrAlreadyResolved = errors.New("invitation already used or cancelled")
	ErrExpired         = errors.New("invitation token expired")
	ErrEmailTaken      = errors.New("email already belongs to a user or pending invitation")
	ErrInvalidRole     = errors.New("invalid invitation role")
	ErrValidation      = errors.New("invalid invitation input")
)

// Invitation is one outstanding or resolved offer to join a tenant.
//
// Token is populated only while Status is invited. Storage retains the last
// token value on resolved rows so a replayed token can be answered with a
// conflict rather than a not-found, but it is never exposed here again.
type Invitation struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`

	TenantID   *string `json:"tenant_id,omitempty"`
	TenantName string  `json:"tenant_name"`
	InvitedBy  string  `json:"invited_by"`

	Token *string `json:"-"`

	// TokenGeneration increments on every resend. Reminder log rows are
	// keyed by it so stage history re-arms against the new issuance.
	TokenGeneration int `json:"token_generation"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    string    `json:"status"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	UserID      *string    `json:"user_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired is the single expiry predicate used by the lifecycle, the
// scheduler, and status views.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == StatusInvited && now.After(i.ExpiresAt)
}

// DerivedStatus returns the stored status, or expired when the invitation is
// still invited but past its expiry.
func (i *Invitation) DerivedStatus(now time.Time) string {
	if i.IsExpired(now) {
		return StatusExpired
	}
	return i.Status
}

// ValidRole reports whether a role is one of the enumerated invitee roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdministrator, RoleSeniorMember, RoleMember:
		return true
	}
	return false
}

// Repository defines the interface for invitation persistence
type Repository interface {
	// Create persists a new invitation. A pending invitation for the same
	// email must be rejected with ErrEmailTaken (unique index, not
	// application locking).
	Create(ctx context.Context, inv *Invitation) error

	// GetByID retrieves an invitation by id
	GetByID(ctx context.Context, id string) (*Invitation, error)

	// GetByToken retrieves an invitation by its token value regardless of
	// status, so consumed and cancelled tokens surface as conflicts.
	GetByToken(ctx context.Context, token string) (*Invitation, error)

	// GetPendingByEmail retrieves the invited-status invitation for an
	// email, if any.
	GetPendingByEmail(ctx context.Context, email string) (*Invitation, error)

	// ListByTenant lists all invitations for a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*Invitation, error)

	// ListPending lists invitations with status invited and expiry after
	// now; the scheduler's scan set.
	ListPending(ctx context.Context, now time.Time) ([]*Invitation, error)

	// ReplaceToken overwrites token material on a resend: new token, bumped
	// generation, new issued/expiry timestamps. Only legal while invited.
	ReplaceToken(ctx context.Context, id, token string, generation int, issuedAt, expiresAt time.Time) error

	// Cancel marks an invited invitation cancelled
	Cancel(ctx context.Context, id string) error
}
