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

package http

import "context"

type contextKey string

const operatorIDKey contextKey = "operator_id"

// GetOperatorID retrieves the authenticated platform operator from context.
func GetOperatorID(ctx context.Context) string {
	if val, ok := ctx.Value(operatorIDKey).(string); ok {
		return val
	}
	return ""
}
