package tenant

import (
	"time"
)

// Tenant represents an isolated agency account on the platform
type Tenant struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Slug         string             `json:"slug"`
	Plan         string             `json:"plan"`
	ManagerID    *string            `json:"manager_id,omitempty"`
	Status       string             `json:"status"`
	Provisioning ProvisioningRecord `json:"provisioning"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ProvisioningRecord captures the outcome of external resource creation.
// Immutable after the tenant row is written; remediation of placeholder
// resources is an operator concern outside this service.
type ProvisioningRecord struct {
	Placeholder   bool      `json:"placeholder"`
	Reason        string    `json:"reason,omitempty"`
	RepoRefs      []string  `json:"repo_refs"`
	DBRef         string    `json:"db_ref"`
	DeployRefs    []string  `json:"deploy_refs"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// Status constants
const (
	StatusPending = "pending" // created, manager not yet activated
	StatusActive  = "active"  // manager completed setup
)

// Plan tiers
const (
	PlanStarter  = "starter"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

// ValidPlan reports whether a plan tier is known.
func ValidPlan(plan string) bool {
	switch plan {
	case PlanStarter, PlanStandard, PlanPremium:
		return true
	}
	return false
}
