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
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openagency/openagency/internal/invitation"
)

// InvitationRepository implements invitation.Repository
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `
	id, email, full_name, role, tenant_id, tenant_name, invited_by,
	token, token_generation, issued_at, expires_at, status,
	activated_at, user_id, created_at, updated_at`

func insertInvitation(ctx context.Context, q querier, inv *invitation.Invitation) error {
	token := ""
	if inv.Token != nil {
		token = *inv.Token
	}

	_, err := q.Exec(ctx, `
		INSERT INTO invitations (
			id, email, full_name, role, tenant_id, tenant_name, invited_by,
			token, token_generation, issued_at, expires_at, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		inv.ID, inv.Email, inv.FullName, inv.Role, inv.TenantID, inv.TenantName,
		inv.InvitedBy, token, inv.TokenGeneration, inv.IssuedAt, inv.ExpiresAt,
		inv.Status, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "invitations_pending_email_key") {
			return invitation.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}

	return nil
}

// scanInvitation maps one row to the domain entity. The token column is
// surfaced only while the invitation is still invited; resolved rows keep
// the value in storage for conflict discrimination but never expose it.
func scanInvitation(row pgx.Row) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	var token string
	var activatedAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.Email, &inv.FullName, &inv.Role, &inv.TenantID,
		&inv.TenantName, &inv.InvitedBy, &token, &inv.TokenGeneration,
		&inv.IssuedAt, &inv.ExpiresAt, &inv.Status,
		&activatedAt, &inv.UserID, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if inv.Status == invitation.StatusInvited {
		inv.Token = &token
	}
	if activatedAt.Valid {
		inv.ActivatedAt = &activatedAt.Time
	}

	return &inv, nil
}

// Create persists a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	return insertInvitation(ctx, r.db.pool, inv)
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, invitation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// GetByToken retrieves an invitation by its token value regardless of
// status, so callers can tell a consumed token apart from an unknown one.
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token = $1
	`, token))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, invitation.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}

	return inv, nil
}

// GetPendingByEmail retrieves the outstanding invitation for an email
func (r *InvitationRepository) GetPendingByEmail(ctx context.Context, email string) (*invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE email = $1 AND status = $2
	`, email, invitation.StatusInvited))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, invitation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}

	return inv, nil
}

// ListByTenant lists all invitations for a tenant
func (r *InvitationRepository) ListByTenant(ctx context.Context, tenantID string) ([]*invitation.Invitation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

// ListPending lists invitations still invited with expiry after now
func (r *InvitationRepository) ListPending(ctx context.Context, now time.Time) ([]*invitation.Invitation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE status = $1 AND expires_at > $2
		ORDER BY expires_at
	`, invitation.StatusInvited, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	return collectInvitations(rows)
}

func collectInvitations(rows pgx.Rows) ([]*invitation.Invitation, error) {
	var invitations []*invitation.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}

	return invitations, nil
}

// ReplaceToken overwrites token material on a resend. Only an invited
// invitation can be replaced; a resolved one is a conflict.
func (r *InvitationRepository) ReplaceToken(ctx context.Context, id, token string, generation int, issuedAt, expiresAt time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE invitations SET
			token = $2,
			token_generation = $3,
			issued_at = $4,
			expires_at = $5,
			updated_at = $6
		WHERE id = $1 AND status = $7
	`, id, token, generation, issuedAt, expiresAt, time.Now(), invitation.StatusInvited)
	if err != nil {
		return fmt.Errorf("failed to replace invitation token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.resolveConflict(ctx, id)
	}

	return nil
}

// Cancel marks an invited invitation cancelled
func (r *InvitationRepository) Cancel(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE invitations SET
			status = $2,
			updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, invitation.StatusCancelled, time.Now(), invitation.StatusInvited)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.resolveConflict(ctx, id)
	}

	return nil
}

// resolveConflict distinguishes a missing invitation from one that is no
// longer invited after a zero-row conditional update.
func (r *InvitationRepository) resolveConflict(ctx context.Context, id string) error {
	var status string
	err := r.db.pool.QueryRow(ctx, `
		SELECT status FROM invitations WHERE id = $1
	`, id).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return invitation.ErrNotFound
		}
		return fmt.Errorf("failed to get invitation status: %w", err)
	}

	return invitation.ErrAlreadyResolved
}
