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

// Package notify defines the notification gateway contract. The gateway is
// an external collaborator: one send attempt per call, no retries here.
package notify

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
)

// Template names understood by the gateway
const (
	TemplateInviteManager  = "invite_manager"
	TemplateInviteMember   = "invite_member"
	TemplateReminderFirst  = "reminder_first"
	TemplateReminderSecond = "reminder_second"
	TemplateReminderFinal  = "reminder_final"
)

// ErrSendFailed is returned when the gateway reports a non-success result
// without a transport error.
var ErrSendFailed = errors.New("notification send failed")

// Message is one templated notification to one recipient.
type Message struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Params    map[string]string `json:"params"`

	// Ref is a caller-generated reference id, set before dispatch so a
	// failed send can still be correlated in logs.
	Ref string `json:"ref"`
}

// Result is the gateway's report for one send attempt.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Gateway sends a templated message to an address and reports the outcome.
type Gateway interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// NewRef returns a ULID reference id for an outbound message.
func NewRef() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SetupLink builds the account activation URL embedding the raw token and a
// role discriminator, consumed by the external setup page.
func SetupLink(base, token, role string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("role", role)
	return base + "?" + q.Encode()
}
