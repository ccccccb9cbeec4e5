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

package schema

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const farmSchema = `{
  "$id": "#farm",
  "title": "Farm",
  "entity": "VC",
  "type": "object",
  "required": ["name", "area"],
  "properties": {
    "name": {"type": "string"},
    "area": {"type": "number", "minimum": 0},
    "location": {"type": "object"}
  },
  "$defs": {
    "#location": {"type": "object"}
  }
}`

func TestResolveAndValidate(t *testing.T) {
	r := NewResolver(testLogger())
	require.NoError(t, r.Register("", []byte(farmSchema)))

	s, err := r.Resolve(context.Background(), "#farm")
	require.NoError(t, err)
	assert.Equal(t, "Farm", s.Name)
	assert.Equal(t, core.EntityVC, s.Entity)
	assert.Equal(t, []string{"#location"}, s.Defs)

	require.NoError(t, s.Validator.Validate(map[string]any{"name": "North", "area": 12}))
	require.Error(t, s.Validator.Validate(map[string]any{"name": "North"}))
	require.Error(t, s.Validator.Validate(map[string]any{"name": "North", "area": -1}))
}

func TestResolveMissing(t *testing.T) {
	r := NewResolver(testLogger())
	_, err := r.Resolve(context.Background(), "#nope")
	require.ErrorIs(t, err, core.ErrSchemaNotFound)
}

func TestGeoJSONAlwaysPresent(t *testing.T) {
	r := NewResolver(testLogger())
	s, err := r.Resolve(context.Background(), core.GeoJSONSchema)
	require.NoError(t, err)
	assert.Equal(t, core.EntityNone, s.Entity)
	require.NoError(t, s.Validator.Validate(map[string]any{"type": "Point", "coordinates": []float64{1, 2}}))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "farm.json"), []byte(farmSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "crop.json"), []byte(`{"type":"object"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	r := NewResolver(testLogger())
	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, r.Has("#farm"))
	assert.True(t, r.Has("#crop"), "files without $id are keyed by name")
}

func TestConcurrentResolveCompilesOnce(t *testing.T) {
	r := NewResolver(testLogger())
	require.NoError(t, r.Register("", []byte(farmSchema)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "#farm")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, r.compiled, 1)
}
