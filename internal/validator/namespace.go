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
	"fmt"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

// namespace holds the names visible to blocks of one policy, module or
// tool. Names declared inside a module never leak to its parent.
type namespace struct {
	id        string
	blockType string
	inTool    bool
	roles     map[string]bool
	groups    map[string]bool
	tokens    map[string]bool
	topics    map[string]bool
	// schemas maps a visible schema name to the IRI it resolves to.
	schemas map[string]string
	tags    map[string]int
}

func newNamespace(id, blockType string) *namespace {
	return &namespace{
		id:        id,
		blockType: blockType,
		roles: map[string]bool{
			core.RoleNone:  true,
			core.RoleAny:   true,
			core.RoleOwner: true,
		},
		groups:  make(map[string]bool),
		tokens:  make(map[string]bool),
		topics:  make(map[string]bool),
		schemas: map[string]string{core.GeoJSONSchema: core.GeoJSONSchema},
		tags:    make(map[string]int),
	}
}

func policyNamespace(p *core.PolicyConfig) *namespace {
	ns := newNamespace("", "")
	for _, r := range p.Roles {
		ns.roles[r] = true
	}
	for _, g := range p.Groups {
		ns.groups[g.Name] = true
	}
	for _, t := range p.Tokens {
		ns.tokens[t] = true
	}
	for _, t := range p.Topics {
		ns.topics[t] = true
	}
	for _, s := range p.Schemas {
		ns.schemas[s] = s
	}
	return ns
}

// declare registers the events and variables a module or tool exposes,
// binding variable values against the enclosing namespace.
func (w *walk) declare(node *graph.Node, cfg *core.BlockConfig, outer, inner *namespace) {
	seen := make(map[string]bool)
	events := append(append([]core.ModuleEvent(nil), cfg.InputEvents...), cfg.OutputEvents...)
	for _, e := range events {
		if e.Name == "" {
			w.errorf(node, "events", "Event name is not set")
			continue
		}
		if seen[e.Name] {
			w.errorf(node, "events", fmt.Sprintf("Event '%s' already exist", e.Name))
		}
		seen[e.Name] = true
	}

	for _, v := range cfg.Variables {
		if v.Name == "" {
			w.errorf(node, "variables", "Variable name is not set")
			continue
		}
		switch v.Type {
		case core.VariableRole:
			inner.roles[v.Name] = true
			if v.Value != "" && !outer.roles[v.Value] {
				w.errorf(node, "variables", fmt.Sprintf("Permission %s not exist", v.Value))
			}
		case core.VariableSchema:
			target := v.Name
			if v.Value != "" {
				iri, ok := outer.schemas[v.Value]
				if !ok {
					w.errorf(node, "variables", fmt.Sprintf("Schema with id %q does not exist", v.Value))
				} else {
					target = iri
				}
			}
			inner.schemas[v.Name] = target
		case core.VariableToken, core.VariableTokenTemplate:
			inner.tokens[v.Name] = true
		case core.VariableGroup:
			inner.groups[v.Name] = true
		case core.VariableTopic:
			inner.topics[v.Name] = true
		case core.VariableString:
		default:
			w.errorf(node, "variables", fmt.Sprintf("Variable %s has unknown type %s", v.Name, v.Type))
		}
	}
}
