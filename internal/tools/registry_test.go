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

package tools

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishAndResolve(t *testing.T) {
	r := NewRegistry(testLogger())
	def := &core.ToolDefinition{
		MessageID: "1700000000.000000001",
		Name:      "calc",
		Config:    &core.BlockConfig{ID: "tool-root", BlockType: core.BlockTypeTool},
	}
	hash, err := r.Publish(def)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	got, err := r.ResolveTool(context.Background(), def.MessageID, hash)
	require.NoError(t, err)
	assert.Equal(t, "calc", got.Name)

	_, err = r.ResolveTool(context.Background(), def.MessageID, "deadbeef")
	require.ErrorIs(t, err, core.ErrToolHashMismatch)

	_, err = r.ResolveTool(context.Background(), "missing", "")
	require.ErrorIs(t, err, core.ErrToolNotFound)
}

func TestPublishRejectsWrongHash(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Publish(&core.ToolDefinition{
		MessageID: "m1",
		Hash:      "0000",
		Config:    &core.BlockConfig{ID: "x"},
	})
	require.ErrorIs(t, err, core.ErrToolHashMismatch)
}

func TestHashIsStable(t *testing.T) {
	a, err := Hash(&core.BlockConfig{ID: "x", Options: map[string]any{"b": 1, "a": 2}})
	require.NoError(t, err)
	b, err := Hash(&core.BlockConfig{ID: "x", Options: map[string]any{"a": 2, "b": 1}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	body := `messageId: m-1
name: scoring
config:
  id: tool-1
  blockType: tool
  inputEvents:
    - name: start
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.yaml"), []byte(body), 0o644))

	r := NewRegistry(testLogger())
	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, err := r.ResolveTool(context.Background(), "m-1", "")
	require.NoError(t, err)
	require.Len(t, def.Config.InputEvents, 1)
	assert.Equal(t, "start", def.Config.InputEvents[0].Name)
}
