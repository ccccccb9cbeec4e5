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
	"context"
	"time"
)

// SchemaEntity is the document kind a schema describes.
type SchemaEntity string

const (
	EntityNone SchemaEntity = "NONE"
	EntityVC   SchemaEntity = "VC"
	EntityEVC  SchemaEntity = "EVC"
)

// GeoJSONSchema is always resolvable in every namespace.
const GeoJSONSchema = "#GeoJSON"

// PayloadValidator checks a decoded JSON value against a compiled schema.
type PayloadValidator interface {
	Validate(v any) error
}

type Schema struct {
	IRI       string
	Name      string
	Entity    SchemaEntity
	Defs      []string
	Validator PayloadValidator
}

type SchemaResolver interface {
	Resolve(ctx context.Context, iri string) (*Schema, error)
}

type ToolRegistry interface {
	ResolveTool(ctx context.Context, messageID, hash string) (*ToolDefinition, error)
}

type MintRequest struct {
	PolicyID      string  `json:"policy_id"`
	TokenID       string  `json:"token_id"`
	Amount        float64 `json:"amount"`
	TargetAccount string  `json:"target_account"`
	Memo          string  `json:"memo,omitempty"`
}

type MintResult struct {
	TransactionID string    `json:"transaction_id"`
	TokenID       string    `json:"token_id"`
	Amount        float64   `json:"amount"`
	Account       string    `json:"account"`
	Simulated     bool      `json:"simulated,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type MintService interface {
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)
	Wipe(ctx context.Context, req MintRequest) (*MintResult, error)
}

type Credential struct {
	ID       string         `json:"id"`
	Issuer   string         `json:"issuer"`
	Subject  string         `json:"subject"`
	Claims   map[string]any `json:"claims"`
	IssuedAt time.Time      `json:"issued_at"`
	Proof    string         `json:"proof"`
}

type CredentialIssuer interface {
	Issue(ctx context.Context, subjectDID string, claims map[string]any) (*Credential, error)
}

// LedgerMessage is a record anchored on the distributed ledger.
type LedgerMessage struct {
	ID        string         `json:"id"`
	PolicyID  string         `json:"policy_id"`
	BlockID   string         `json:"block_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	LedgerDocument = "document"
	LedgerMint     = "mint"
	LedgerWipe     = "wipe"
	LedgerRole     = "role"
)

type LedgerAnchor interface {
	Anchor(ctx context.Context, msg LedgerMessage) (string, error)
}

type ExternalEvent struct {
	Type      string         `json:"type"`
	PolicyID  string         `json:"policy_id"`
	BlockID   string         `json:"block_id"`
	BlockType string         `json:"block_type"`
	UserDID   string         `json:"user"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	ExternalRun = "Run"
	ExternalSet = "Set"
)

type ExternalEventPublisher interface {
	Publish(ctx context.Context, evt ExternalEvent) error
}

// Notifier pushes block-update hints to connected users.
type Notifier interface {
	BlockUpdated(policyID, blockID, userDID string, data map[string]any)
}

// StateStore persists state cache entries.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}

type Group struct {
	ID           string            `json:"id"`
	PolicyID     string            `json:"policy_id"`
	Name         string            `json:"name"`
	Relationship GroupRelationship `json:"relationship"`
	Access       GroupAccess       `json:"access"`
	Owner        string            `json:"owner"`
	CreatedAt    time.Time         `json:"created_at"`
}

type Membership struct {
	GroupID      string    `json:"group_id"`
	PolicyID     string    `json:"policy_id"`
	GroupName    string    `json:"group_name"`
	UserDID      string    `json:"user"`
	Role         string    `json:"role"`
	Owner        string    `json:"owner"`
	CredentialID string    `json:"credential_id"`
	// Founder is set on the membership that created its group.
	Founder      bool      `json:"founder,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Invitation struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policy_id"`
	GroupID   string    `json:"group_id"`
	Role      string    `json:"role"`
	IssuedBy  string    `json:"issued_by"`
	CreatedAt time.Time `json:"created_at"`
}

type GroupStore interface {
	// FindOrCreateGlobal returns the global group named name, creating g
	// atomically when none exists. created reports whether g was stored.
	FindOrCreateGlobal(ctx context.Context, g *Group) (found *Group, created bool, err error)
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	AddMember(ctx context.Context, m *Membership) error
	RemoveMember(ctx context.Context, groupID, userDID string) error
	// ReleaseGroup deletes g and its global name claim unless g still has
	// members. released reports whether g was deleted.
	ReleaseGroup(ctx context.Context, g *Group) (released bool, err error)
	Member(ctx context.Context, groupID, userDID string) (*Membership, error)
	Memberships(ctx context.Context, policyID, userDID string) ([]*Membership, error)
	SaveInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	Close() error
}
