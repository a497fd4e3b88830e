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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openagency/openagency/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func insertTenant(ctx context.Context, q querier, t *tenant.Tenant) error {
	provisioning, err := json.Marshal(t.Provisioning)
	if err != nil {
		return fmt.Errorf("failed to encode provisioning record: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO tenants (
			id, name, slug, plan, manager_id, status, provisioning,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.ID, t.Name, t.Slug, t.Plan, t.ManagerID, t.Status, provisioning,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "tenants_slug_key") {
			return tenant.ErrSlugTaken
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	return nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var provisioning []byte

	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Plan, &t.ManagerID, &t.Status,
		&provisioning, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(provisioning, &t.Provisioning); err != nil {
		return nil, fmt.Errorf("failed to decode provisioning record: %w", err)
	}

	return &t, nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.pool.QueryRow(ctx, `
		SELECT id, name, slug, plan, manager_id, status, provisioning,
			created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return t, nil
}

// GetBySlug retrieves a tenant by slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.pool.QueryRow(ctx, `
		SELECT id, name, slug, plan, manager_id, status, provisioning,
			created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`, slug))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}

	return t, nil
}

// List lists tenants, newest first
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, slug, plan, manager_id, status, provisioning,
			created_at, updated_at
		FROM tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, nil
}

// SetManager points the tenant at its activated manager and flips the
// tenant status to active
func (r *TenantRepository) SetManager(ctx context.Context, tenantID, userID string) error {
	return setManager(ctx, r.db.pool, tenantID, userID)
}

func setManager(ctx context.Context, q querier, tenantID, userID string) error {
	result, err := q.Exec(ctx, `
		UPDATE tenants SET
			manager_id = $2,
			status = $3,
			updated_at = $4
		WHERE id = $1
	`, tenantID, userID, tenant.StatusActive, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set tenant manager: %w", err)
	}

	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}

	return nil
}
