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
)

// ResourceSet holds the tenant-scoped infrastructure identifiers obtained
// from the resource provisioner.
type ResourceSet struct {
	RepoRefs   []string `json:"repo_refs"`
	DBRef      string   `json:"db_ref"`
	DeployRefs []string `json:"deploy_refs"`
}

// Outcome is the tagged result of resource creation: either real resources
// or clearly flagged placeholders with the reason the real call failed.
// Callers must branch on Placeholder rather than trusting the refs blindly.
type Outcome struct {
	Resources   ResourceSet `json:"resources"`
	Placeholder bool        `json:"placeholder"`
	Reason      string      `json:"reason,omitempty"`
}

// RealOutcome wraps resources returned by the upstream provisioner.
func RealOutcome(rs ResourceSet) Outcome {
	return Outcome{Resources: rs}
}

// PlaceholderOutcome wraps deterministic stand-in resources after an
// upstream failure, recording why.
func PlaceholderOutcome(rs ResourceSet, reason string) Outcome {
	return Outcome{Resources: rs, Placeholder: true, Reason: reason}
}

// Provisioner creates tenant-scoped infrastructure for a descriptor. External
// collaborator: implementations must bound the call with a timeout so a hung
// upstream reads as a failure, never a stall.
type Provisioner interface {
	Provision(ctx context.Context, d Descriptor) (ResourceSet, error)
}

// PlaceholderResources builds the deterministic stand-in resource set for a
// tenant slug. Well-formed so downstream consumers keep working, and
// obviously fake so nobody mistakes it for live infrastructure.
func PlaceholderResources(slug string) ResourceSet {
	return ResourceSet{
		RepoRefs:   []string{"pending/" + slug},
		DBRef:      "placeholder:" + slug,
		DeployRefs: []string{fmt.Sprintf("https://%s.pending.invalid", slug)},
	}
}
