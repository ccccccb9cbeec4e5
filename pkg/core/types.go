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

import (
	"strconv"
	"time"
)

// Permission sentinels accepted in every permission namespace.
const (
	RoleNone  = "NO_ROLE"
	RoleAny   = "ANY_ROLE"
	RoleOwner = "OWNER"
)

// AllUsers is the user key of policy-wide state entries.
const AllUsers = "all"

// BlockTypeModule and BlockTypeTool mark nodes that own a nested namespace.
const (
	BlockTypeModule = "module"
	BlockTypeTool   = "tool"
)

type EventType string

const (
	EventRun         EventType = "RunEvent"
	EventRefresh     EventType = "RefreshEvent"
	EventRelease     EventType = "ReleaseEvent"
	EventError       EventType = "ErrorEvent"
	EventModule      EventType = "ModuleEvent"
	EventTool        EventType = "ToolEvent"
	EventRestore     EventType = "RestoreEvent"
	EventCreateGroup EventType = "CreateGroup"
	EventJoinGroup   EventType = "JoinGroup"
)

type EventActor string

const (
	ActorInitiator EventActor = ""
	ActorOwner     EventActor = "owner"
	ActorIssuer    EventActor = "issuer"
)

// EventConfig wires an output event of one block to an input event of another.
// Source and Target are block ids; an empty Source means the declaring block.
type EventConfig struct {
	Source   string     `yaml:"source,omitempty" json:"source,omitempty"`
	Target   string     `yaml:"target" json:"target"`
	Output   EventType  `yaml:"output" json:"output"`
	Input    EventType  `yaml:"input" json:"input"`
	Actor    EventActor `yaml:"actor,omitempty" json:"actor,omitempty"`
	Disabled bool       `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// ModuleEvent is a named event a module or tool exposes to its parent scope.
type ModuleEvent struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Variable is a module or tool input bound by the embedding policy.
type Variable struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

const (
	VariableSchema        = "Schema"
	VariableToken         = "Token"
	VariableRole          = "Role"
	VariableGroup         = "Group"
	VariableTokenTemplate = "TokenTemplate"
	VariableTopic         = "Topic"
	VariableString        = "String"
)

// BlockConfig is the author-facing, untyped block tree.
type BlockConfig struct {
	ID              string         `yaml:"id" json:"id"`
	BlockType       string         `yaml:"blockType" json:"blockType"`
	Tag             string         `yaml:"tag,omitempty" json:"tag,omitempty"`
	Permissions     []string       `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	StopPropagation bool           `yaml:"stopPropagation,omitempty" json:"stopPropagation,omitempty"`
	Children        []*BlockConfig `yaml:"children,omitempty" json:"children,omitempty"`
	Events          []EventConfig  `yaml:"events,omitempty" json:"events,omitempty"`
	InputEvents     []ModuleEvent  `yaml:"inputEvents,omitempty" json:"inputEvents,omitempty"`
	OutputEvents    []ModuleEvent  `yaml:"outputEvents,omitempty" json:"outputEvents,omitempty"`
	Variables       []Variable     `yaml:"variables,omitempty" json:"variables,omitempty"`
	MessageID       string         `yaml:"messageId,omitempty" json:"messageId,omitempty"`
	Hash            string         `yaml:"hash,omitempty" json:"hash,omitempty"`
	Options         map[string]any `yaml:",inline" json:"options,omitempty"`
}

// String returns a string option, or "" when absent.
func (c *BlockConfig) String(key string) string {
	if c == nil || c.Options == nil {
		return ""
	}
	switch v := c.Options[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (c *BlockConfig) Bool(key string) bool {
	if c == nil || c.Options == nil {
		return false
	}
	b, _ := c.Options[key].(bool)
	return b
}

func (c *BlockConfig) Int(key string, def int) int {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Strings returns a list option; a single string is treated as a one-element list.
func (c *BlockConfig) Strings(key string) []string {
	if c == nil || c.Options == nil {
		return nil
	}
	switch v := c.Options[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Maps returns a list-of-objects option.
func (c *BlockConfig) Maps(key string) []map[string]any {
	if c == nil || c.Options == nil {
		return nil
	}
	switch v := c.Options[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

type GroupRelationship string

const (
	GroupSingle   GroupRelationship = "Single"
	GroupMultiple GroupRelationship = "Multiple"
)

type GroupAccess string

const (
	GroupPrivate GroupAccess = "Private"
	GroupGlobal  GroupAccess = "Global"
)

// GroupTemplate declares a group users may create or join.
type GroupTemplate struct {
	Name         string            `yaml:"name" json:"name"`
	Creator      string            `yaml:"creator" json:"creator"`
	Members      string            `yaml:"members" json:"members"`
	Relationship GroupRelationship `yaml:"groupRelationshipType" json:"groupRelationshipType"`
	Access       GroupAccess       `yaml:"groupAccessType" json:"groupAccessType"`
}

// PolicyConfig is a complete authored policy.
type PolicyConfig struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Owner       string          `yaml:"owner" json:"owner"`
	Roles       []string        `yaml:"policyRoles" json:"policyRoles"`
	Groups      []GroupTemplate `yaml:"policyGroups,omitempty" json:"policyGroups,omitempty"`
	Schemas     []string        `yaml:"schemas,omitempty" json:"schemas,omitempty"`
	Tokens      []string        `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	Topics      []string        `yaml:"topics,omitempty" json:"topics,omitempty"`
	IgnoreRules []IgnoreRule    `yaml:"ignoreRules,omitempty" json:"ignoreRules,omitempty"`
	Root        *BlockConfig    `yaml:"config" json:"config"`
}

// GroupTemplate returns the declared group template with the given name.
func (p *PolicyConfig) GroupTemplate(name string) (GroupTemplate, bool) {
	for _, g := range p.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupTemplate{}, false
}

func (p *PolicyConfig) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JoinRequest selects the group a user joins: an invitation token, a group
// template name, or a bare role. The first non-empty field wins.
type JoinRequest struct {
	Invitation string `json:"invitation,omitempty"`
	Group      string `json:"group,omitempty"`
	Role       string `json:"role,omitempty"`
}

// ToolDefinition is a published, reusable sub-policy.
type ToolDefinition struct {
	MessageID string       `yaml:"messageId" json:"messageId"`
	Hash      string       `yaml:"hash" json:"hash"`
	Name      string       `yaml:"name" json:"name"`
	Schemas   []string     `yaml:"schemas,omitempty" json:"schemas,omitempty"`
	Config    *BlockConfig `yaml:"config" json:"config"`
}

// User is the acting identity of an engine call.
type User struct {
	DID      string `json:"did"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Group    string `json:"group,omitempty"`
	Account  string `json:"account,omitempty"`
	IsOwner  bool   `json:"isOwner,omitempty"`
}

// Key identifies the user in state and in-flight tables.
func (u User) Key() string {
	if u.DID == "" {
		return AllUsers
	}
	return u.DID
}

// Event is one propagated step of a causal chain.
type Event struct {
	ID        string         `json:"id"`
	PolicyID  string         `json:"policy_id"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Output    EventType      `json:"output"`
	Input     EventType      `json:"input"`
	User      User           `json:"user"`
	Data      map[string]any `json:"data,omitempty"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Document is a credential or ledger record produced by a block.
type Document struct {
	ID            string         `json:"id"`
	PolicyID      string         `json:"policy_id"`
	Type          string         `json:"type"`
	Schema        string         `json:"schema,omitempty"`
	Owner         string         `json:"owner"`
	Group         string         `json:"group,omitempty"`
	Account       string         `json:"account,omitempty"`
	Status        string         `json:"status,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Relationships []string       `json:"relationships,omitempty"`
	MessageID     string         `json:"message_id,omitempty"`
	BlockID       string         `json:"block_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

const (
	DocumentVC   = "VC"
	DocumentVP   = "VP"
	DocumentMint = "mint"
	DocumentWipe = "wipe"
)
