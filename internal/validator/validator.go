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

// Package validator builds a block graph from a policy configuration and
// reports every structural and semantic problem it finds in one pass.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wso2/api-platform/policy-engine/internal/reachability"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type Options struct {
	// Reachability attaches reachability diagnostics to every block.
	Reachability bool
	// StructuralFallback adds parent to child edges for blocks without
	// declared event wiring when computing reachability.
	StructuralFallback bool
}

func DefaultOptions() Options {
	return Options{Reachability: true, StructuralFallback: true}
}

// Validator is safe for concurrent use; every call keeps its own state.
type Validator struct {
	registry *blocks.Registry
	schemas  core.SchemaResolver
	tools    core.ToolRegistry
	opts     Options
	logger   *slog.Logger
}

func New(registry *blocks.Registry, schemas core.SchemaResolver, tools core.ToolRegistry, opts Options, logger *slog.Logger) *Validator {
	return &Validator{
		registry: registry,
		schemas:  schemas,
		tools:    tools,
		opts:     opts,
		logger:   logger.With("component", "validator"),
	}
}

type schemaRef struct {
	node     *graph.Node
	property string
	name     string
	accept   []core.SchemaEntity
	ns       *namespace
}

// walk accumulates the state of one validation pass.
type walk struct {
	v      *Validator
	ctx    context.Context
	graph  *graph.Graph
	policy []core.Diagnostic
	refs   []schemaRef
	chain  []string
	owners []*graph.Node
	// inner maps a module or tool id to the namespace of its members.
	inner map[string]*namespace

	resolved      map[string]resolvedSchema
	schemaResults map[string]*core.SchemaResult
}

func (w *walk) add(n *graph.Node, sev core.Severity, code, property, message string) {
	n.Diagnostics = append(n.Diagnostics, core.Diagnostic{
		Code:      code,
		Severity:  sev,
		BlockID:   n.ID,
		BlockType: n.Type,
		Property:  property,
		Message:   message,
	})
}

func (w *walk) errorf(n *graph.Node, property, message string) {
	w.add(n, core.SeverityError, "", property, message)
}

// Validate builds the graph of p and its diagnostics bundle. Extra ignore
// rules are applied together with the policy's own.
func (v *Validator) Validate(ctx context.Context, p *core.PolicyConfig, ignore ...core.IgnoreRule) (*graph.Graph, *core.ValidationResult) {
	w := &walk{
		v:             v,
		ctx:           ctx,
		graph:         graph.New(p.ID),
		inner:         make(map[string]*namespace),
		resolved:      make(map[string]resolvedSchema),
		schemaResults: make(map[string]*core.SchemaResult),
	}

	if p.Root == nil {
		w.policy = append(w.policy, core.Diagnostic{Severity: core.SeverityError, Message: "Policy has no root block"})
	} else {
		root := policyNamespace(p)
		w.walk(p.Root, "", root, "0")
		w.resolveSchemas(p, root)
		w.link()
		w.markInvalidTools()
		if v.opts.Reachability {
			w.reachability()
		}
	}

	rules := append(append([]core.IgnoreRule(nil), p.IgnoreRules...), ignore...)
	res := w.result(p, rules)
	v.logger.Debug("policy validated",
		"policy_id", p.ID,
		"valid", res.IsValid,
		"blocks", len(res.Blocks),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings))
	return w.graph, res
}

func (w *walk) walk(cfg *core.BlockConfig, parent string, ns *namespace, path string) {
	id := cfg.ID
	missing := id == ""
	if missing {
		id = "auto:" + path
	}

	if existing, ok := w.graph.Node(id); ok {
		w.errorf(existing, "id", fmt.Sprintf("UUID %s already exist", id))
		childNS := ns
		if inner, ok := w.inner[existing.ID]; ok {
			childNS = inner
		}
		for i, child := range cfg.Children {
			w.walk(child, existing.ID, childNS, fmt.Sprintf("%s/%d", path, i))
		}
		return
	}

	node := &graph.Node{
		ID:          id,
		Type:        cfg.BlockType,
		Tag:         cfg.Tag,
		Config:      cfg,
		Parent:      parent,
		Scope:       ns.id,
		Permissions: cfg.Permissions,
	}
	w.graph.Add(node)
	if missing {
		w.errorf(node, "id", "UUID is not set")
	}

	if cfg.Tag != "" {
		ns.tags[cfg.Tag]++
		if ns.tags[cfg.Tag] > 1 {
			w.add(node, core.SeverityWarning, core.CodeDuplicateTag, "tag", fmt.Sprintf("Tag %s already exist", cfg.Tag))
		}
	}
	for _, p := range cfg.Permissions {
		if !ns.roles[p] {
			w.errorf(node, "permissions", fmt.Sprintf("Permission %s not exist", p))
		}
	}

	behavior, ok := w.v.registry.Lookup(cfg.BlockType)
	if !ok {
		w.errorf(node, "blockType", fmt.Sprintf("Unknown block type %s", cfg.BlockType))
		for i, child := range cfg.Children {
			w.walk(child, node.ID, ns, fmt.Sprintf("%s/%d", path, i))
		}
		return
	}
	about := behavior.About()
	node.EntryPoint = about.EntryPoint
	node.Inputs, node.Outputs = w.v.registry.Events(cfg)

	if about.Deprecated {
		w.add(node, core.SeverityWarning, core.CodeDeprecationBlock, "", fmt.Sprintf("Block %s is deprecated", cfg.BlockType))
	}
	for _, prop := range about.DeprecatedProps {
		if _, set := cfg.Options[prop]; set {
			w.add(node, core.SeverityWarning, core.CodeDeprecationProp, prop, fmt.Sprintf("Property %s is deprecated", prop))
		}
	}

	switch cfg.BlockType {
	case core.BlockTypeModule:
		w.expandModule(node, cfg, ns, path)
		return
	case core.BlockTypeTool:
		w.expandTool(node, cfg, ns, path)
		return
	}

	if about.Children == blocks.ChildrenNone && len(cfg.Children) > 0 {
		w.errorf(node, "children", "Children are not allowed")
	}
	if ov, ok := behavior.(blocks.OptionsValidator); ok {
		ov.ValidateOptions(nodeScope{w: w, node: node, ns: ns})
	}
	for i, child := range cfg.Children {
		w.walk(child, node.ID, ns, fmt.Sprintf("%s/%d", path, i))
	}
}

func (w *walk) expandModule(node *graph.Node, cfg *core.BlockConfig, ns *namespace, path string) {
	if ns.inTool {
		w.errorf(node, "blockType", "The tool can't contain another module")
	}
	inner := newNamespace(node.ID, core.BlockTypeModule)
	inner.inTool = ns.inTool
	w.declare(node, cfg, ns, inner)
	w.owners = append(w.owners, node)
	w.inner[node.ID] = inner
	for i, child := range cfg.Children {
		w.walk(child, node.ID, inner, fmt.Sprintf("%s/%d", path, i))
	}
}

func (w *walk) expandTool(node *graph.Node, cfg *core.BlockConfig, ns *namespace, path string) {
	key := cfg.MessageID
	if key == "" {
		w.errorf(node, "messageId", "Tool not found")
		return
	}
	for _, m := range w.chain {
		if m == key {
			chain := strings.Join(append(append([]string(nil), w.chain...), key), " -> ")
			w.errorf(node, "messageId", "Circular tool inclusion: "+chain)
			return
		}
	}

	def, err := w.v.tools.ResolveTool(w.ctx, cfg.MessageID, cfg.Hash)
	switch {
	case errors.Is(err, core.ErrToolHashMismatch):
		w.errorf(node, "hash", "Tool hash does not match")
		return
	case err != nil:
		w.errorf(node, "messageId", "Tool not found")
		return
	case def.Config == nil:
		w.errorf(node, "messageId", "Tool is invalid")
		return
	}

	embedded := embed(cfg, def)
	node.Config = embedded
	node.Inputs, node.Outputs = w.v.registry.Events(embedded)

	inner := newNamespace(node.ID, core.BlockTypeTool)
	inner.inTool = true
	for _, iri := range def.Schemas {
		inner.schemas[iri] = iri
	}
	w.declare(node, embedded, ns, inner)
	w.owners = append(w.owners, node)
	w.inner[node.ID] = inner

	w.chain = append(w.chain, key)
	for i, child := range embedded.Children {
		w.walk(child, node.ID, inner, fmt.Sprintf("%s/%d", path, i))
	}
	w.chain = w.chain[:len(w.chain)-1]
}

// markInvalidTools flags every tool whose namespace has errors. Owners
// are visited innermost first so nested failures surface on each level.
func (w *walk) markInvalidTools() {
	for i := len(w.owners) - 1; i >= 0; i-- {
		owner := w.owners[i]
		if owner.Type == core.BlockTypeTool && w.scopeHasErrors(owner.ID) {
			w.errorf(owner, "", "Tool is invalid")
		}
	}
}

// embed overlays the embedding block's identity, wiring and variable
// bindings on the published tool configuration.
func embed(cfg *core.BlockConfig, def *core.ToolDefinition) *core.BlockConfig {
	out := *def.Config
	out.ID = cfg.ID
	out.BlockType = core.BlockTypeTool
	out.Tag = cfg.Tag
	out.Permissions = cfg.Permissions
	out.Events = cfg.Events
	out.StopPropagation = cfg.StopPropagation
	out.MessageID = cfg.MessageID
	out.Hash = def.Hash

	bound := make(map[string]string, len(cfg.Variables))
	for _, v := range cfg.Variables {
		bound[v.Name] = v.Value
	}
	out.Variables = make([]core.Variable, len(def.Config.Variables))
	for i, v := range def.Config.Variables {
		if val, ok := bound[v.Name]; ok {
			v.Value = val
		}
		out.Variables[i] = v
	}
	return &out
}

func (w *walk) scopeHasErrors(scopeID string) bool {
	for _, n := range w.graph.Scope(scopeID) {
		if n.HasErrors() {
			return true
		}
	}
	return false
}

func (w *walk) reachability() {
	report := reachability.Analyze(w.graph, reachability.Options{StructuralFallback: w.v.opts.StructuralFallback})
	for _, n := range w.graph.Nodes() {
		if n.ID == w.graph.Root {
			continue
		}
		if !report.Reachable[n.ID] {
			w.add(n, core.SeverityWarning, core.CodeUnreachableBlock, "", "Block is not reachable from any entry point")
		}
		declaresEvents := len(n.Inputs) > 0 || len(n.Outputs) > 0
		in, out := report.Incoming[n.ID], report.Outgoing[n.ID]
		switch {
		case !declaresEvents:
		case in == 0 && out == 0:
			w.add(n, core.SeverityWarning, core.CodeReachabilityIsolated, "", "Block has no incoming or outgoing events")
		case in == 0 && len(n.Inputs) > 0:
			w.add(n, core.SeverityInfo, core.CodeReachabilityNoIn, "", "Block has no incoming events")
		case out == 0 && len(n.Outputs) > 0:
			w.add(n, core.SeverityInfo, core.CodeReachabilityNoOut, "", "Block has no outgoing events")
		}
	}
}

// nodeScope is the blocks.ValidationScope of one node.
type nodeScope struct {
	w    *walk
	node *graph.Node
	ns   *namespace
}

func (s nodeScope) Config() *core.BlockConfig { return s.node.Config }

func (s nodeScope) Error(property, message string) { s.w.errorf(s.node, property, message) }

func (s nodeScope) Warning(code, property, message string) {
	s.w.add(s.node, core.SeverityWarning, code, property, message)
}

func (s nodeScope) RequireSchema(property, iri string, accept ...core.SchemaEntity) {
	s.w.refs = append(s.w.refs, schemaRef{node: s.node, property: property, name: iri, accept: accept, ns: s.ns})
}

func (s nodeScope) HasRole(role string) bool  { return s.ns.roles[role] }
func (s nodeScope) HasGroup(name string) bool { return s.ns.groups[name] }
func (s nodeScope) HasToken(id string) bool   { return s.ns.tokens[id] }
func (s nodeScope) HasTopic(id string) bool   { return s.ns.topics[id] }
