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

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookGateway implements Gateway over the message service's HTTP webhook.
type WebhookGateway struct {
	endpoint string
	client   *resty.Client
}

// NewWebhookGateway creates a gateway client with a bounded request timeout.
// A send that exceeds the timeout is a failed send, never a hung one.
func NewWebhookGateway(endpoint string, timeout time.Duration) *WebhookGateway {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &WebhookGateway{
		endpoint: endpoint,
		client:   client,
	}
}

// Send posts the message and decodes the gateway's result.
func (g *WebhookGateway) Send(ctx context.Context, msg Message) (Result, error) {
	var result Result

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&result).
		Post(g.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("notification gateway unreachable: %w", err)
	}

	if resp.IsError() {
		return Result{}, fmt.Errorf("notification gateway returned %s", resp.Status())
	}

	if !result.Success {
		return result, fmt.Errorf("%w: %s", ErrSendFailed, result.Err)
	}

	return result, nil
}
