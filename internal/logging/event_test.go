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
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func TestEventLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	el := NewEventLogger(logger)

	evt := core.Event{
		ID: "e1", PolicyID: "p1", Source: "req", Target: "send",
		Output: core.EventRun, Input: core.EventRun,
		User: core.User{DID: "did:user:1"}, Timestamp: time.Now(),
	}
	el.Log(evt, "sendToGuardianBlock")
	assert.Zero(t, buf.Len(), "debug events are filtered at info level")

	el.WithLevel(slog.LevelInfo).Log(evt, "sendToGuardianBlock")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "event", rec["msg"])
	assert.Equal(t, "send", rec["target"])
	assert.Equal(t, "did:user:1", rec["user"])
	assert.Equal(t, "RunEvent", rec["input"])
}
