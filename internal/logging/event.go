// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package logging

import (
	"context"
	"log/slog"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// EventLogger traces every propagated event of a causal chain.
type EventLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy logging at level; dry runs are traced at Info.
func (p *EventLogger) WithLevel(level slog.Level) *EventLogger {
	return &EventLogger{logger: p.logger, level: level}
}

func (p *EventLogger) Log(evt core.Event, targetType string) {
	p.logger.Log(context.Background(), p.level, "event",
		"event_id", evt.ID,
		"policy_id", evt.PolicyID,
		"source", evt.Source,
		"output", evt.Output,
		"target", evt.Target,
		"target_type", targetType,
		"input", evt.Input,
		"user", evt.User.Key(),
		"dry_run", evt.DryRun,
		"timestamp", evt.Timestamp,
	)
}
