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

package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/observability/logger"
	"github.com/openagency/openagency/internal/observability/metrics"
	"go.opentelemetry.io/otel/metric"
)

// PendingSource lists the scheduler's scan set: invitations still invited
// with expiry in the future.
type PendingSource interface {
	ListPending(ctx context.Context, now time.Time) ([]*invitation.Invitation, error)
}

// Summary is the outcome of one scheduler run.
type Summary struct {
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	TotalChecked int `json:"total_checked"`
}

// Scheduler scans pending invitations on each wake-up, decides the due
// stage, and dispatches reminders. Per-invitation failures never abort the
// scan; they are counted into the run summary.
type Scheduler struct {
	invitations  PendingSource
	log          Log
	gateway      notify.Gateway
	policy       Policy
	setupBaseURL string
	auditLogger  audit.Logger

	sentCounter    metric.Int64Counter
	failedCounter  metric.Int64Counter
	skippedCounter metric.Int64Counter

	now func() time.Time
}

// NewScheduler creates a reminder scheduler
func NewScheduler(
	invitations PendingSource,
	log Log,
	gateway notify.Gateway,
	policy Policy,
	setupBaseURL string,
	auditLogger audit.Logger,
	meter *metrics.Meter,
) (*Scheduler, error) {
	sent, err := meter.CreateCounter("reminders_sent_total", "Reminder notifications sent")
	if err != nil {
		return nil, err
	}
	failed, err := meter.CreateCounter("reminders_failed_total", "Reminder notifications that failed to send")
	if err != nil {
		return nil, err
	}
	skipped, err := meter.CreateCounter("reminders_skipped_total", "Reminders skipped because already recorded")
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		invitations:    invitations,
		log:            log,
		gateway:        gateway,
		policy:         policy,
		setupBaseURL:   setupBaseURL,
		auditLogger:    auditLogger,
		sentCounter:    sent,
		failedCounter:  failed,
		skippedCounter: skipped,
		now:            time.Now,
	}, nil
}

// Run executes one scan. It never returns an error: a run that cannot even
// list invitations is an empty summary with the failure logged.
func (s *Scheduler) Run(ctx context.Context) Summary {
	now := s.now()
	var sum Summary

	pending, err := s.invitations.ListPending(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "reminder scan failed to list pending invitations",
			logger.Component("reminder"), logger.Error(err))
		return sum
	}

	sum.TotalChecked = len(pending)

	for _, inv := range pending {
		stage, due := StageDue(s.policy, inv.IssuedAt, inv.ExpiresAt, now)
		if !due {
			continue
		}

		exists, err := s.log.Exists(ctx, inv.ID, inv.TokenGeneration, stage)
		if err != nil {
			sum.Failed++
			slog.ErrorContext(ctx, "reminder log lookup failed",
				logger.InvitationID(inv.ID), logger.Stage(string(stage)), logger.Error(err))
			continue
		}
		if exists {
			sum.Skipped++
			s.skippedCounter.Add(ctx, 1)
			continue
		}

		if err := s.send(ctx, inv, stage); err != nil {
			sum.Failed++
			s.failedCounter.Add(ctx, 1)
			slog.WarnContext(ctx, "reminder send failed",
				logger.InvitationID(inv.ID), logger.Stage(string(stage)), logger.Error(err))
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeNotificationFailed,
				TenantID: tenantOf(inv),
				Resource: inv.ID,
				Metadata: map[string]any{audit.AttrStage: string(stage), audit.AttrReason: err.Error()},
			})
			continue
		}

		// Record only after a successful send, so an unsent reminder can be
		// retried on the next wake-up.
		rec := Record{
			InvitationID:    inv.ID,
			TokenGeneration: inv.TokenGeneration,
			Stage:           stage,
			SentAt:          now,
		}
		if err := s.log.Record(ctx, rec); err != nil {
			if err == ErrDuplicateRecord {
				// A concurrent scheduler instance won the race
				sum.Skipped++
				s.skippedCounter.Add(ctx, 1)
				continue
			}
			sum.Failed++
			slog.ErrorContext(ctx, "failed to record sent reminder",
				logger.InvitationID(inv.ID), logger.Stage(string(stage)), logger.Error(err))
			continue
		}

		sum.Sent++
		s.sentCounter.Add(ctx, 1)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeReminderSent,
			TenantID: tenantOf(inv),
			Resource: inv.ID,
			Metadata: map[string]any{audit.AttrStage: string(stage)},
		})
	}

	slog.InfoContext(ctx, "reminder run complete",
		logger.Component("reminder"),
		slog.Int("sent", sum.Sent),
		slog.Int("failed", sum.Failed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("total_checked", sum.TotalChecked),
	)

	return sum
}

func (s *Scheduler) send(ctx context.Context, inv *invitation.Invitation, stage Stage) error {
	tok := ""
	if inv.Token != nil {
		tok = *inv.Token
	}

	msg := notify.Message{
		Template:  templateFor(stage),
		Recipient: inv.Email,
		Ref:       notify.NewRef(),
		Params: map[string]string{
			"invitee_name": inv.FullName,
			"tenant_name":  inv.TenantName,
			"setup_link":   notify.SetupLink(s.setupBaseURL, tok, inv.Role),
			"expires_at":   inv.ExpiresAt.Format(time.RFC3339),
		},
	}

	_, err := s.gateway.Send(ctx, msg)
	return err
}

func templateFor(stage Stage) string {
	switch stage {
	case StageSecond:
		return notify.TemplateReminderSecond
	case StageFinal:
		return notify.TemplateReminderFinal
	default:
		return notify.TemplateReminderFirst
	}
}

func tenantOf(inv *invitation.Invitation) string {
	if inv.TenantID == nil {
		return ""
	}
	return *inv.TenantID
}
