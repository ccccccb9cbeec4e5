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
	"log/slog"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type ChildrenType string

const (
	ChildrenNone    ChildrenType = "None"
	ChildrenSpecial ChildrenType = "Special"
	ChildrenAny     ChildrenType = "Any"
)

type ControlType string

const (
	ControlUI      ControlType = "UI"
	ControlServer  ControlType = "Server"
	ControlSpecial ControlType = "Special"
)

// About is the static capability metadata of a block kind.
type About struct {
	Label           string
	Post            bool
	Get             bool
	Children        ChildrenType
	Control         ControlType
	Input           []core.EventType
	Output          []core.EventType
	DefaultEvent    bool
	Common          bool
	EntryPoint      bool
	Deprecated      bool
	DeprecatedProps []string
}

// Behavior is implemented by every block kind. The optional capabilities
// below are discovered by type assertion.
type Behavior interface {
	Type() string
	About() About
}

type Getter interface {
	GetData(ctx context.Context, bc *Context) (map[string]any, error)
}

type Setter interface {
	SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error)
}

type Runner interface {
	RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error)
}

// ChildTracker is notified when an event is delivered to one of its children.
type ChildTracker interface {
	ChildActivated(ctx context.Context, bc *Context, child *graph.Node) (*Result, error)
}

// EventDeclarer adds events that depend on the block configuration.
type EventDeclarer interface {
	Events(cfg *core.BlockConfig) (inputs, outputs []core.EventType)
}

type OptionsValidator interface {
	ValidateOptions(scope ValidationScope)
}

// ValidationScope is the view a block has of the validation pass.
type ValidationScope interface {
	Config() *core.BlockConfig
	Error(property, message string)
	Warning(code, property, message string)
	RequireSchema(property, iri string, accept ...core.SchemaEntity)
	HasRole(role string) bool
	HasGroup(name string) bool
	HasToken(id string) bool
	HasTopic(id string) bool
}

type Tier int

const (
	TierShort Tier = iota
	TierLong
)

// State is the per-(block, user) cache.
type State interface {
	Get(ctx context.Context, tier Tier, name string, out any) (bool, error)
	Set(ctx context.Context, tier Tier, name string, value any) error
	Clear(ctx context.Context, tier Tier) error
}

// Documents is the policy-wide document table.
type Documents interface {
	Save(ctx context.Context, doc *core.Document) error
	Get(ctx context.Context, id string) (*core.Document, error)
	List(ctx context.Context) ([]*core.Document, error)
}

type GroupJoiner interface {
	Join(ctx context.Context, policyKey string, policy *core.PolicyConfig, user core.User, req core.JoinRequest) (*core.Membership, error)
	Leave(ctx context.Context, m *core.Membership) error
}

type Services struct {
	Schemas core.SchemaResolver
	Mint    core.MintService
	Ledger  core.LedgerAnchor
	Groups  GroupJoiner
}

// Context is the environment of one block invocation.
type Context struct {
	PolicyKey string
	Policy    *core.PolicyConfig
	Graph     *graph.Graph
	Node      *graph.Node
	User      core.User
	DryRun    bool
	State     State
	Documents Documents
	Services  *Services
	Logger    *slog.Logger

	// StateOf returns the state of another block for the same user.
	StateOf func(blockID string) State
	// Visible reports whether a node is available to the acting user.
	Visible func(n *graph.Node) bool
	// Background schedules fn to run after the dispatch commits.
	Background func(name string, fn func(ctx context.Context, bc *Context))
	// Notify pushes an update of this block to the acting user.
	Notify func(data map[string]any)
	// OnRollback registers fn to undo a side effect outside the state
	// cache if the dispatch does not commit. Nil outside a dispatch.
	OnRollback func(fn func(ctx context.Context) error)
}

// Undo registers fn with OnRollback when the context has one.
func (c *Context) Undo(fn func(ctx context.Context) error) {
	if c.OnRollback != nil {
		c.OnRollback(fn)
	}
}

type Output struct {
	Type core.EventType
	Data map[string]any
}

type Result struct {
	Data    map[string]any
	Outputs []Output
	Update  bool
}

func (r *Result) Emit(t core.EventType, data map[string]any) *Result {
	r.Outputs = append(r.Outputs, Output{Type: t, Data: data})
	return r
}

// DocumentsOf extracts the documents carried by event data.
func DocumentsOf(data map[string]any) []*core.Document {
	if data == nil {
		return nil
	}
	switch v := data["documents"].(type) {
	case []*core.Document:
		return v
	case *core.Document:
		return []*core.Document{v}
	}
	return nil
}

// Carry wraps documents as event data.
func Carry(docs ...*core.Document) map[string]any {
	return map[string]any{"documents": docs}
}
