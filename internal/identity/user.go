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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrWeakPassword      = errors.New("password does not meet security requirements")
)

// User represents an activated account in a tenant. Accounts only come into
// existence when an invitation is accepted; there is no open signup.
type User struct {
	ID        string
	TenantID  string
	Email     string
	FullName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email across all tenants. Invitation
	// preconditions check global email uniqueness, not per-tenant.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// IsStrongPassword reports whether a password meets the minimum policy.
func IsStrongPassword(password string) bool {
	return len(password) >= 8
}
