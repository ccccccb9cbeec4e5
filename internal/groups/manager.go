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

// Package groups assigns users to policy roles and groups.
package groups

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Manager resolves join requests against a policy's group templates and
// records memberships. A membership is stored only after its credential
// has been issued.
type Manager struct {
	store  core.GroupStore
	issuer core.CredentialIssuer
	logger *slog.Logger
}

func NewManager(store core.GroupStore, issuer core.CredentialIssuer, logger *slog.Logger) *Manager {
	return &Manager{store: store, issuer: issuer, logger: logger.With("component", "groups")}
}

// Join assigns user according to req. The invitation wins over a group
// name, and a group name over a bare role.
func (m *Manager) Join(ctx context.Context, policyKey string, policy *core.PolicyConfig, user core.User, req core.JoinRequest) (*core.Membership, error) {
	if user.DID == "" {
		return nil, fmt.Errorf("%w: user is required", core.ErrInvalidPayload)
	}
	switch {
	case req.Invitation != "":
		return m.redeem(ctx, policyKey, user, req.Invitation)
	case req.Group != "":
		return m.joinTemplate(ctx, policyKey, policy, user, req.Group)
	case req.Role != "":
		if !policy.HasRole(req.Role) {
			return nil, fmt.Errorf("%w: role=%s", core.ErrInvalidPayload, req.Role)
		}
		if err := m.ensureSingle(ctx, policyKey, user.DID, req.Role); err != nil {
			return nil, err
		}
		g := m.newGroup(policyKey, req.Role, core.GroupSingle, core.GroupPrivate, user.DID)
		return m.assign(ctx, g, true, true, user, req.Role)
	}
	return nil, fmt.Errorf("%w: role, group or invitation is required", core.ErrInvalidPayload)
}

func (m *Manager) joinTemplate(ctx context.Context, policyKey string, policy *core.PolicyConfig, user core.User, name string) (*core.Membership, error) {
	tmpl, ok := policy.GroupTemplate(name)
	if !ok {
		return nil, fmt.Errorf("%w: policy=%s group=%s", core.ErrGroupNotFound, policyKey, name)
	}
	g := m.newGroup(policyKey, tmpl.Name, tmpl.Relationship, tmpl.Access, user.DID)

	if tmpl.Relationship != core.GroupMultiple || tmpl.Access != core.GroupGlobal {
		if tmpl.Relationship == core.GroupSingle {
			if err := m.ensureSingle(ctx, policyKey, user.DID, tmpl.Name); err != nil {
				return nil, err
			}
		}
		return m.assign(ctx, g, true, true, user, tmpl.Creator)
	}

	found, created, err := m.store.FindOrCreateGlobal(ctx, g)
	if err != nil {
		return nil, err
	}
	role := tmpl.Creator
	if !created && tmpl.Members != "" {
		role = tmpl.Members
	}
	if created {
		m.logger.Info("global group created", "policy", policyKey, "group_id", found.ID, "name", found.Name, "owner", found.Owner)
	}
	return m.assign(ctx, found, false, created, user, role)
}

// ensureSingle rejects a second membership under the same group name.
func (m *Manager) ensureSingle(ctx context.Context, policyKey, did, name string) error {
	existing, err := m.store.Memberships(ctx, policyKey, did)
	if err != nil {
		return err
	}
	for _, ms := range existing {
		if ms.GroupName == name {
			return fmt.Errorf("%w: group=%s", core.ErrAlreadyMember, name)
		}
	}
	return nil
}

func (m *Manager) redeem(ctx context.Context, policyKey string, user core.User, token string) (*core.Membership, error) {
	id, err := DecodeInvitation(token)
	if err != nil {
		return nil, err
	}
	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInvitation, err)
	}
	if inv.PolicyID != policyKey {
		return nil, fmt.Errorf("%w: invitation belongs to another policy", core.ErrInvalidInvitation)
	}
	g, err := m.store.GetGroup(ctx, inv.GroupID)
	if err != nil {
		return nil, err
	}
	return m.assign(ctx, g, false, false, user, inv.Role)
}

func (m *Manager) newGroup(policyKey, name string, rel core.GroupRelationship, access core.GroupAccess, owner string) *core.Group {
	return &core.Group{
		ID:           uuid.New().String(),
		PolicyID:     policyKey,
		Name:         name,
		Relationship: rel,
		Access:       access,
		Owner:        owner,
		CreatedAt:    time.Now().UTC(),
	}
}

// assign issues the role credential and stores the membership. A group
// marked fresh is stored together with its first membership. When founder
// is set and the assignment fails, the group is released again so the
// next joiner can claim it.
func (m *Manager) assign(ctx context.Context, g *core.Group, fresh, founder bool, user core.User, role string) (ms *core.Membership, err error) {
	if founder {
		defer func() {
			if err != nil {
				m.release(context.WithoutCancel(ctx), g)
			}
		}()
	}
	if !fresh {
		if _, err := m.store.Member(ctx, g.ID, user.DID); err == nil {
			return nil, fmt.Errorf("%w: group=%s", core.ErrAlreadyMember, g.Name)
		} else if !errors.Is(err, core.ErrStateNotFound) {
			return nil, err
		}
	}

	cred, err := m.issuer.Issue(ctx, user.DID, map[string]any{
		"policy":    g.PolicyID,
		"group":     g.ID,
		"groupName": g.Name,
		"role":      role,
		"owner":     g.Owner,
	})
	if err != nil {
		return nil, core.Collaborator("credential issuer", err)
	}

	if fresh {
		if err := m.store.CreateGroup(ctx, g); err != nil {
			return nil, err
		}
	}
	ms = &core.Membership{
		GroupID:      g.ID,
		PolicyID:     g.PolicyID,
		GroupName:    g.Name,
		UserDID:      user.DID,
		Role:         role,
		Owner:        g.Owner,
		CredentialID: cred.ID,
		Founder:      founder,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.AddMember(ctx, ms); err != nil {
		return nil, err
	}

	m.logger.Info("member joined",
		"policy", g.PolicyID,
		"group_id", g.ID,
		"group", g.Name,
		"user", user.DID,
		"role", role,
	)
	return ms, nil
}

// Leave removes a membership made by Join. The group goes with it when
// ms founded the group and nobody else has joined since.
func (m *Manager) Leave(ctx context.Context, ms *core.Membership) error {
	if err := m.store.RemoveMember(ctx, ms.GroupID, ms.UserDID); err != nil {
		return err
	}
	if ms.Founder {
		g, err := m.store.GetGroup(ctx, ms.GroupID)
		if err != nil {
			if errors.Is(err, core.ErrGroupNotFound) {
				return nil
			}
			return err
		}
		m.release(ctx, g)
	}
	m.logger.Info("member left",
		"policy", ms.PolicyID,
		"group_id", ms.GroupID,
		"group", ms.GroupName,
		"user", ms.UserDID,
	)
	return nil
}

func (m *Manager) release(ctx context.Context, g *core.Group) {
	released, err := m.store.ReleaseGroup(ctx, g)
	if err != nil {
		m.logger.Error("group not released", "policy", g.PolicyID, "group_id", g.ID, "error", err)
		return
	}
	if released {
		m.logger.Info("group released", "policy", g.PolicyID, "group_id", g.ID, "name", g.Name)
	}
}

// Invite records an invitation to groupID and returns its token.
func (m *Manager) Invite(ctx context.Context, groupID, role, issuedBy string) (string, error) {
	g, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	if _, err := m.store.Member(ctx, groupID, issuedBy); err != nil && issuedBy != g.Owner {
		return "", fmt.Errorf("%w: %s is not a member of group %s", core.ErrForbidden, issuedBy, g.Name)
	}
	inv := &core.Invitation{
		ID:        uuid.New().String(),
		PolicyID:  g.PolicyID,
		GroupID:   g.ID,
		Role:      role,
		IssuedBy:  issuedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.SaveInvitation(ctx, inv); err != nil {
		return "", err
	}
	return EncodeInvitation(inv.ID), nil
}

// RoleOf returns the most recent role user holds in the policy.
func (m *Manager) RoleOf(ctx context.Context, policyKey, userDID string) (string, string, error) {
	all, err := m.store.Memberships(ctx, policyKey, userDID)
	if err != nil {
		return "", "", err
	}
	if len(all) == 0 {
		return "", "", fmt.Errorf("%w: policy=%s user=%s", core.ErrGroupNotFound, policyKey, userDID)
	}
	last := all[len(all)-1]
	return last.Role, last.GroupID, nil
}

type invitationToken struct {
	Invitation string `json:"invitation"`
}

func EncodeInvitation(id string) string {
	raw, _ := json.Marshal(invitationToken{Invitation: id})
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeInvitation(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInvitation, err)
	}
	var t invitationToken
	if err := json.Unmarshal(raw, &t); err != nil || t.Invitation == "" {
		return "", fmt.Errorf("%w: malformed token", core.ErrInvalidInvitation)
	}
	return t.Invitation, nil
}
