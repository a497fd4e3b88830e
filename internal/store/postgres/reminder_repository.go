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

	"github.com/openagency/openagency/internal/reminder"
)

// ReminderLogRepository implements reminder.Log on the append-only
// reminder_log table. Idempotency lives in the unique constraint, not in
// application locking.
type ReminderLogRepository struct {
	db *DB
}

// NewReminderLogRepository creates a new reminder log repository
func NewReminderLogRepository(db *DB) *ReminderLogRepository {
	return &ReminderLogRepository{db: db}
}

// Exists reports whether a reminder was already recorded for the
// invitation, token generation, and stage
func (r *ReminderLogRepository) Exists(ctx context.Context, invitationID string, generation int, stage reminder.Stage) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_log
			WHERE invitation_id = $1 AND token_generation = $2 AND stage = $3
		)
	`, invitationID, generation, string(stage)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reminder log: %w", err)
	}

	return exists, nil
}

// Record appends one delivery row. A concurrent writer hitting the unique
// constraint surfaces as reminder.ErrDuplicateRecord.
func (r *ReminderLogRepository) Record(ctx context.Context, rec reminder.Record) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO reminder_log (invitation_id, token_generation, stage, sent_at)
		VALUES ($1, $2, $3, $4)
	`, rec.InvitationID, rec.TokenGeneration, string(rec.Stage), rec.SentAt)
	if err != nil {
		if uniqueViolation(err, "reminder_log_stage_key") {
			return reminder.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to record reminder: %w", err)
	}

	return nil
}
