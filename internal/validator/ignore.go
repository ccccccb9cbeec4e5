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

package validator

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Ignored reports whether any rule hides d. Errors are never hidden.
func Ignored(rules []core.IgnoreRule, d core.Diagnostic) bool {
	if d.Severity == core.SeverityError {
		return false
	}
	for _, r := range rules {
		if matches(r, d) {
			return true
		}
	}
	return false
}

func matches(r core.IgnoreRule, d core.Diagnostic) bool {
	if r == (core.IgnoreRule{}) {
		return false
	}
	if r.Code != "" && r.Code != d.Code {
		return false
	}
	if r.BlockType != "" && r.BlockType != d.BlockType {
		return false
	}
	if r.Property != "" {
		ok, err := doublestar.Match(r.Property, d.Property)
		if err != nil || !ok {
			return false
		}
	}
	if r.Contains != "" && !strings.Contains(strings.ToLower(d.Message), strings.ToLower(r.Contains)) {
		return false
	}
	if r.Severity != "" && r.Severity != d.Severity {
		return false
	}
	return true
}
