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

package runtime

import (
	"context"
	"errors"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

// identify completes user with ownership and, when the caller did not
// supply one, the role held in the policy.
func (e *Engine) identify(ctx context.Context, inst *instance, user core.User) core.User {
	if inst.policy.Owner != "" && user.DID == inst.policy.Owner {
		user.IsOwner = true
	}
	if user.Role != "" || user.DID == "" || inst.roles == nil {
		return user
	}
	role, group, err := inst.roles.RoleOf(ctx, inst.key, user.DID)
	if err != nil {
		if !errors.Is(err, core.ErrGroupNotFound) {
			e.logger.Warn("role lookup failed", "policy_id", inst.policy.ID, "user", user.DID, "error", err)
		}
		return user
	}
	user.Role = role
	if user.Group == "" {
		user.Group = group
	}
	return user
}

// hasPermission checks n alone. A block without permissions defers to its
// ancestors.
func (inst *instance) hasPermission(n *graph.Node, user core.User) bool {
	if len(n.Permissions) == 0 {
		return true
	}
	for _, p := range n.Permissions {
		switch p {
		case core.RoleAny:
			return true
		case core.RoleOwner:
			if user.IsOwner {
				return true
			}
		case core.RoleNone:
			if user.Role == "" && !user.IsOwner {
				return true
			}
		default:
			if user.Role != "" && inst.policyRole(n.Scope, p) == user.Role {
				return true
			}
		}
	}
	return false
}

// policyRole maps a role declared in a module or tool namespace outward to
// the policy role bound to it through Role variables.
func (inst *instance) policyRole(scope, role string) string {
	for scope != "" {
		owner, ok := inst.graph.Node(scope)
		if !ok {
			return role
		}
		bound := ""
		for _, v := range owner.Config.Variables {
			if v.Type == core.VariableRole && v.Name == role {
				bound = v.Value
				break
			}
		}
		if bound == "" {
			return role
		}
		role = bound
		scope = owner.Scope
	}
	return role
}

// isAvailable reports whether n and every ancestor grant user access.
func (inst *instance) isAvailable(n *graph.Node, user core.User) bool {
	if !inst.hasPermission(n, user) {
		return false
	}
	for _, a := range inst.graph.Ancestors(n.ID) {
		if !inst.hasPermission(a, user) {
			return false
		}
	}
	return true
}
