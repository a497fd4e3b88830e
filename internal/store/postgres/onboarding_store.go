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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/tenant"
)

// OnboardingStore implements the two transactional units of work of the
// onboarding flow: tenant-plus-invitation creation and invitation
// acceptance. Each method is a single transaction; nothing partial
// persists.
type OnboardingStore struct {
	db *DB
}

// NewOnboardingStore creates a new onboarding store
func NewOnboardingStore(db *DB) *OnboardingStore {
	return &OnboardingStore{db: db}
}

// CreateTenantWithInvitation writes the tenant row and its manager
// invitation atomically
func (s *OnboardingStore) CreateTenantWithInvitation(ctx context.Context, t *tenant.Tenant, inv *invitation.Invitation) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTenant(ctx, tx, t); err != nil {
		return err
	}
	if err := insertInvitation(ctx, tx, inv); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Activate consumes an invited invitation and creates the user with their
// credentials in one transaction. An administrator acceptance also records
// the user as the tenant's manager and activates the tenant.
func (s *OnboardingStore) Activate(ctx context.Context, inv *invitation.Invitation, user *identity.User, passwordHash string) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	// Conditional on status: a concurrent acceptance or cancellation makes
	// this a zero-row update, which aborts as a conflict.
	result, err := tx.Exec(ctx, `
		UPDATE invitations SET
			status = $2,
			activated_at = $3,
			user_id = $4,
			updated_at = $5
		WHERE id = $1 AND status = $6
	`, inv.ID, invitation.StatusActive, now, user.ID, now, invitation.StatusInvited)
	if err != nil {
		return fmt.Errorf("failed to consume invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return invitation.ErrAlreadyResolved
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, full_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.TenantID, user.Email, user.FullName, user.Role,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if uniqueViolation(err, "users_email_key") {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at)
		VALUES ($1, $2, $3)
	`, user.ID, passwordHash, now)
	if err != nil {
		return fmt.Errorf("failed to insert credentials: %w", err)
	}

	if inv.Role == invitation.RoleAdministrator && inv.TenantID != nil {
		if err := setManager(ctx, tx, *inv.TenantID, user.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
