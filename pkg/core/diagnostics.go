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

package core

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic codes of suppressible messages.
const (
	CodeUnreachableBlock     = "UNREACHABLE_BLOCK"
	CodeReachabilityNoIn     = "REACHABILITY_NO_IN"
	CodeReachabilityNoOut    = "REACHABILITY_NO_OUT"
	CodeReachabilityIsolated = "REACHABILITY_ISOLATED"
	CodeDeprecationBlock     = "DEPRECATION_BLOCK"
	CodeDeprecationProp      = "DEPRECATION_PROP"
	CodeDuplicateTag         = "DUPLICATE_TAG"
)

type Diagnostic struct {
	Code      string   `json:"code,omitempty"`
	Severity  Severity `json:"severity"`
	BlockID   string   `json:"blockId,omitempty"`
	BlockType string   `json:"blockType,omitempty"`
	Property  string   `json:"property,omitempty"`
	Message   string   `json:"message"`
}

// IgnoreRule hides matching warnings and infos. Empty fields match anything;
// a rule with every field empty matches nothing.
type IgnoreRule struct {
	Code      string   `yaml:"code,omitempty" json:"code,omitempty"`
	BlockType string   `yaml:"blockType,omitempty" json:"blockType,omitempty"`
	Property  string   `yaml:"property,omitempty" json:"property,omitempty"`
	Contains  string   `yaml:"contains,omitempty" json:"contains,omitempty"`
	Severity  Severity `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// BlockResult holds the diagnostics of one graph node.
type BlockResult struct {
	ID        string       `json:"id"`
	BlockType string       `json:"blockType"`
	Scope     string       `json:"scope,omitempty"`
	IsValid   bool         `json:"isValid"`
	Errors    []Diagnostic `json:"errors"`
	Warnings  []Diagnostic `json:"warnings"`
	Infos     []Diagnostic `json:"infos"`
}

// SchemaResult reports resolution of one schema reference.
type SchemaResult struct {
	IRI     string   `json:"iri"`
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ScopeResult summarises a module or tool namespace.
type ScopeResult struct {
	ID        string `json:"id"`
	BlockType string `json:"blockType"`
	IsValid   bool   `json:"isValid"`
	Blocks    int    `json:"blocks"`
}

// ValidationResult is the diagnostics bundle of one policy.
type ValidationResult struct {
	PolicyID string         `json:"policyId,omitempty"`
	IsValid  bool           `json:"isValid"`
	Errors   []Diagnostic   `json:"errors"`
	Warnings []Diagnostic   `json:"warnings"`
	Infos    []Diagnostic   `json:"infos"`
	Blocks   []BlockResult  `json:"blocks"`
	Scopes   []ScopeResult  `json:"scopes,omitempty"`
	Schemas  []SchemaResult `json:"schemas,omitempty"`
}

// Block returns the per-block result for id.
func (r *ValidationResult) Block(id string) (BlockResult, bool) {
	for _, b := range r.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return BlockResult{}, false
}
