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

// Package reminder escalates pending invitations through staged nudges
// without ever double-sending. The reminder log is the sole idempotency
// guard; its uniqueness constraint lives in storage, not here.
package reminder

import (
	"context"
	"errors"
	"time"
)

// Stage is one escalation point.
type Stage string

const (
	StageFirst  Stage = "first"
	StageSecond Stage = "second"
	StageFinal  Stage = "final"
)

// ErrDuplicateRecord is returned by the log when a (invitation, generation,
// stage) row already exists; treated as an idempotent skip.
var ErrDuplicateRecord = errors.New("reminder already recorded")

// Record is one reminder actually sent. Append-only; rows are keyed by the
// invitation's token generation so a resend re-arms stage history without
// deleting anything.
type Record struct {
	InvitationID    string    `json:"invitation_id"`
	TokenGeneration int       `json:"token_generation"`
	Stage           Stage     `json:"stage"`
	SentAt          time.Time `json:"sent_at"`
}

// Log is the append-only reminder record store.
type Log interface {
	// Exists reports whether a record for the key is already present
	Exists(ctx context.Context, invitationID string, generation int, stage Stage) (bool, error)

	// Record appends a row, returning ErrDuplicateRecord on a key collision
	Record(ctx context.Context, rec Record) error
}

// Policy holds the escalation thresholds. A policy constant, not structure:
// all three knobs come from configuration.
type Policy struct {
	FirstAfter  time.Duration // elapsed since issuance before the first nudge
	SecondAfter time.Duration // elapsed since issuance before the second nudge
	FinalWindow time.Duration // remaining lifetime that triggers the final nudge
}

// StageDue decides which reminder stage, if any, an invitation has crossed.
// Precedence is urgency-first: final, then second, then first.
func StageDue(p Policy, issuedAt, expiresAt, now time.Time) (Stage, bool) {
	elapsed := now.Sub(issuedAt)
	remaining := expiresAt.Sub(now)

	switch {
	case remaining <= p.FinalWindow:
		return StageFinal, true
	case elapsed >= p.SecondAfter:
		return StageSecond, true
	case elapsed >= p.FirstAfter:
		return StageFirst, true
	}
	return "", false
}
