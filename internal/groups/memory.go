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

package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type memberKey struct {
	group string
	user  string
}

type userKey struct {
	policy string
	user   string
}

// MemoryStore implements core.GroupStore in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	groups      map[string]*core.Group
	globals     map[string]string
	members     map[memberKey]*core.Membership
	byUser      map[userKey][]memberKey
	invitations map[string]*core.Invitation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:      make(map[string]*core.Group),
		globals:     make(map[string]string),
		members:     make(map[memberKey]*core.Membership),
		byUser:      make(map[userKey][]memberKey),
		invitations: make(map[string]*core.Invitation),
	}
}

func globalKey(policyID, name string) string {
	return policyID + "\x00" + name
}

func (s *MemoryStore) FindOrCreateGlobal(_ context.Context, g *core.Group) (*core.Group, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := globalKey(g.PolicyID, g.Name)
	if id, ok := s.globals[k]; ok {
		return s.groups[id], false, nil
	}
	s.groups[g.ID] = g
	s.globals[k] = g.ID
	return g, true, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, g *core.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", core.ErrGroupNotFound, id)
	}
	return g, nil
}

func (s *MemoryStore) AddMember(_ context.Context, m *core.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{m.GroupID, m.UserDID}
	if _, ok := s.members[k]; ok {
		return fmt.Errorf("%w: group=%s", core.ErrAlreadyMember, m.GroupName)
	}
	s.members[k] = m
	uk := userKey{m.PolicyID, m.UserDID}
	s.byUser[uk] = append(s.byUser[uk], k)
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, groupID, userDID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{groupID, userDID}
	m, ok := s.members[k]
	if !ok {
		return nil
	}
	delete(s.members, k)
	uk := userKey{m.PolicyID, userDID}
	keys := s.byUser[uk]
	for i, mk := range keys {
		if mk == k {
			s.byUser[uk] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(s.byUser[uk]) == 0 {
		delete(s.byUser, uk)
	}
	return nil
}

func (s *MemoryStore) ReleaseGroup(_ context.Context, g *core.Group) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.members {
		if k.group == g.ID {
			return false, nil
		}
	}
	delete(s.groups, g.ID)
	if gk := globalKey(g.PolicyID, g.Name); s.globals[gk] == g.ID {
		delete(s.globals, gk)
	}
	return true, nil
}

func (s *MemoryStore) Member(_ context.Context, groupID, userDID string) (*core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey{groupID, userDID}]
	if !ok {
		return nil, fmt.Errorf("%w: group=%s user=%s", core.ErrStateNotFound, groupID, userDID)
	}
	return m, nil
}

func (s *MemoryStore) Memberships(_ context.Context, policyID, userDID string) ([]*core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.byUser[userKey{policyID, userDID}]
	out := make([]*core.Membership, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.members[k])
	}
	return out, nil
}

func (s *MemoryStore) SaveInvitation(_ context.Context, inv *core.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[inv.ID] = inv
	return nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, id string) (*core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, fmt.Errorf("%w: invitation=%s", core.ErrStateNotFound, id)
	}
	return inv, nil
}

func (s *MemoryStore) Close() error { return nil }
