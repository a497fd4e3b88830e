package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrSlugTaken      = errors.New("tenant slug already in use")
)

// Repository defines the interface for tenant storage
type Repository interface {
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)

	// SetManager points the tenant at its activated manager account and
	// flips the tenant status to active.
	SetManager(ctx context.Context, tenantID, userID string) error
}
