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
	"time"

	"github.com/go-resty/resty/v2"
)

type provisionRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Plan string `json:"plan"`
}

type provisionResponse struct {
	Success   bool `json:"success"`
	Resources struct {
		RepoRefs   []string `json:"repo_refs"`
		DBRef      string   `json:"db_ref"`
		DeployRefs []string `json:"deploy_refs"`
	} `json:"resources"`
	Error string `json:"error,omitempty"`
}

// HTTPProvisioner implements Provisioner against the infrastructure service's
// HTTP API with a bounded request timeout.
type HTTPProvisioner struct {
	baseURL string
	client  *resty.Client
}

// NewHTTPProvisioner creates a provisioner client. The timeout stands in for
// cancellation: past it the call is failed, not hung.
func NewHTTPProvisioner(baseURL string, timeout time.Duration) *HTTPProvisioner {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPProvisioner{
		baseURL: baseURL,
		client:  client,
	}
}

// Provision requests tenant-scoped infrastructure for the descriptor.
func (p *HTTPProvisioner) Provision(ctx context.Context, d Descriptor) (ResourceSet, error) {
	var out provisionResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(provisionRequest{Name: d.Name, Slug: d.Slug, Plan: d.Plan}).
		SetResult(&out).
		Post(p.baseURL + "/v1/provision")
	if err != nil {
		return ResourceSet{}, fmt.Errorf("resource provisioner unreachable: %w", err)
	}

	if resp.IsError() {
		return ResourceSet{}, fmt.Errorf("resource provisioner returned %s", resp.Status())
	}

	if !out.Success {
		return ResourceSet{}, fmt.Errorf("resource provisioner failed: %s", out.Error)
	}

	return ResourceSet{
		RepoRefs:   out.Resources.RepoRefs,
		DBRef:      out.Resources.DBRef,
		DeployRefs: out.Resources.DeployRefs,
	}, nil
}
