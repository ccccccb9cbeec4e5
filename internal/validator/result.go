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
	"sort"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func (w *walk) result(p *core.PolicyConfig, rules []core.IgnoreRule) *core.ValidationResult {
	res := &core.ValidationResult{
		PolicyID: p.ID,
		Errors:   append([]core.Diagnostic{}, w.policy...),
		Warnings: []core.Diagnostic{},
		Infos:    []core.Diagnostic{},
		Blocks:   []core.BlockResult{},
	}

	for _, n := range w.graph.Nodes() {
		br := core.BlockResult{
			ID:        n.ID,
			BlockType: n.Type,
			Scope:     n.Scope,
			Errors:    []core.Diagnostic{},
			Warnings:  []core.Diagnostic{},
			Infos:     []core.Diagnostic{},
		}
		for _, d := range n.Diagnostics {
			if Ignored(rules, d) {
				continue
			}
			switch d.Severity {
			case core.SeverityError:
				br.Errors = append(br.Errors, d)
			case core.SeverityWarning:
				br.Warnings = append(br.Warnings, d)
			default:
				br.Infos = append(br.Infos, d)
			}
		}
		br.IsValid = len(br.Errors) == 0
		res.Blocks = append(res.Blocks, br)
		res.Errors = append(res.Errors, br.Errors...)
		res.Warnings = append(res.Warnings, br.Warnings...)
		res.Infos = append(res.Infos, br.Infos...)
	}

	for _, owner := range w.owners {
		res.Scopes = append(res.Scopes, core.ScopeResult{
			ID:        owner.ID,
			BlockType: owner.Type,
			IsValid:   !owner.HasErrors() && !w.scopeHasErrors(owner.ID),
			Blocks:    len(w.graph.Scope(owner.ID)),
		})
	}

	schemasValid := true
	for _, sr := range w.schemaResults {
		res.Schemas = append(res.Schemas, *sr)
		schemasValid = schemasValid && sr.IsValid
	}
	sort.Slice(res.Schemas, func(i, j int) bool { return res.Schemas[i].IRI < res.Schemas[j].IRI })

	res.IsValid = len(res.Errors) == 0 && schemasValid
	return res
}
