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

package blocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const TypePolicyRoles = "policyRolesBlock"

// PolicyRoles lets a user pick a role or group, or redeem an invitation.
type PolicyRoles struct{}

func (PolicyRoles) Type() string { return TypePolicyRoles }

func (PolicyRoles) About() About {
	return About{
		Label:    "Roles",
		Post:     true,
		Get:      true,
		Children: ChildrenNone,
		Control:  ControlUI,
		Input:    []core.EventType{core.EventRun, core.EventRefresh},
		Output:   []core.EventType{core.EventCreateGroup, core.EventJoinGroup},
	}
}

func (PolicyRoles) ValidateOptions(scope ValidationScope) {
	cfg := scope.Config()
	for _, role := range cfg.Strings("roles") {
		if !scope.HasRole(role) {
			scope.Error("roles", fmt.Sprintf("Role %s does not exist", role))
		}
	}
	for _, group := range cfg.Strings("groups") {
		if !scope.HasGroup(group) {
			scope.Error("groups", fmt.Sprintf("Group %s does not exist", group))
		}
	}
}

func (PolicyRoles) GetData(_ context.Context, bc *Context) (map[string]any, error) {
	cfg := bc.Node.Config
	return map[string]any{
		"id":         bc.Node.ID,
		"roles":      cfg.Strings("roles"),
		"groups":     cfg.Strings("groups"),
		"uiMetaData": cfg.Options["uiMetaData"],
	}, nil
}

func (p PolicyRoles) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	req := core.JoinRequest{}
	req.Invitation, _ = payload["invitation"].(string)
	req.Group, _ = payload["group"].(string)
	req.Role, _ = payload["role"].(string)
	if err := p.allowed(bc.Node.Config, req); err != nil {
		return nil, err
	}

	if bc.Services.Groups == nil {
		return nil, core.Collaborator("groups", errors.New("group service is not configured"))
	}
	m, err := bc.Services.Groups.Join(ctx, bc.PolicyKey, bc.Policy, bc.User, req)
	if err != nil {
		return nil, err
	}
	bc.Undo(func(ctx context.Context) error {
		return bc.Services.Groups.Leave(ctx, m)
	})

	if _, err := bc.Services.Ledger.Anchor(ctx, core.LedgerMessage{
		PolicyID: bc.PolicyKey,
		BlockID:  bc.Node.ID,
		Kind:     core.LedgerRole,
		Payload: map[string]any{
			"user":       m.UserDID,
			"role":       m.Role,
			"group":      m.GroupID,
			"credential": m.CredentialID,
		},
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return nil, core.Collaborator("ledger", err)
	}

	data := map[string]any{
		"role":      m.Role,
		"group":     m.GroupID,
		"groupName": m.GroupName,
		"owner":     m.Owner,
	}
	out := core.EventCreateGroup
	if req.Invitation != "" {
		out = core.EventJoinGroup
	}
	res := &Result{Data: data, Update: true}
	return res.Emit(out, data), nil
}

func (PolicyRoles) allowed(cfg *core.BlockConfig, req core.JoinRequest) error {
	switch {
	case req.Invitation != "":
		return nil
	case req.Group != "":
		for _, g := range cfg.Strings("groups") {
			if g == req.Group {
				return nil
			}
		}
		return fmt.Errorf("%w: group %s is not offered", core.ErrInvalidPayload, req.Group)
	case req.Role != "":
		for _, r := range cfg.Strings("roles") {
			if r == req.Role {
				return nil
			}
		}
		return fmt.Errorf("%w: role %s is not offered", core.ErrInvalidPayload, req.Role)
	}
	return fmt.Errorf("%w: role, group or invitation is required", core.ErrInvalidPayload)
}
