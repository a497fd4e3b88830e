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

// Package token mints single-use invitation tokens and computes their
// expiry. Pure function of "now" and the configured windows, so the
// lifecycle and the scheduler can never disagree on expiry semantics.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Token length in raw bytes. 32 bytes = 256 bits of entropy, well above the
// 128-bit floor required for an unguessable credential.
const tokenBytes = 32

// RoleAdministrator is the role granted the short invitation window; every
// other role shares the member window.
const RoleAdministrator = "administrator"

// Generator mints cryptographically random opaque tokens.
type Generator struct{}

// NewGenerator creates a token generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// New returns a fresh URL-safe token.
func (g *Generator) New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Policy holds the role-keyed invitation windows.
type Policy struct {
	AdminWindow  time.Duration
	MemberWindow time.Duration
}

// Window returns the invitation window for a role. Deterministic: the same
// role always maps to the same duration.
func (p Policy) Window(role string) time.Duration {
	if role == RoleAdministrator {
		return p.AdminWindow
	}
	return p.MemberWindow
}

// ExpiryFrom computes expiry = issuedAt + window(role), exactly.
func (p Policy) ExpiryFrom(issuedAt time.Time, role string) time.Time {
	return issuedAt.Add(p.Window(role))
}
