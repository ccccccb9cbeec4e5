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

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const validPolicy = `id: good
owner: did:owner
policyRoles: [Registrant]
config:
  id: root
  blockType: interfaceContainerBlock
  permissions: [ANY_ROLE]
  children:
    - id: info
      blockType: informationBlock
`

const invalidPolicy = `id: bad
config:
  id: root
  blockType: interfaceContainerBlock
  children:
    - id: x
      blockType: noSuchBlock
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(args ...string) (string, error) {
	cmd := rootCmd()
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateValidPolicy(t *testing.T) {
	path := writeFile(t, "good.yaml", validPolicy)

	out, err := execute("validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(good): valid, 0 errors")
}

func TestValidateReportsErrors(t *testing.T) {
	good := writeFile(t, "good.yaml", validPolicy)
	bad := writeFile(t, "bad.yaml", invalidPolicy)

	out, err := execute("validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 policies are not valid")
	assert.Contains(t, out, "(bad): INVALID")
	assert.Contains(t, out, "Unknown block type noSuchBlock")
}

func TestValidateJSONOutput(t *testing.T) {
	path := writeFile(t, "good.yaml", validPolicy)

	out, err := execute("validate", "--json", "--no-reachability", path)
	require.NoError(t, err)

	var results []core.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, "good", results[0].PolicyID)
}

func TestValidateRequiresArgs(t *testing.T) {
	_, err := execute("validate")
	assert.Error(t, err)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute("validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
