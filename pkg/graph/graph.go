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

// Package graph holds the validated block graph. Nodes live in a single
// table addressed by id; parent and child relations are ids, so the
// structure owns no cycles even when the event wiring does.
package graph

import "github.com/wso2/api-platform/policy-engine/pkg/core"

type Node struct {
	ID          string
	Type        string
	Tag         string
	Config      *core.BlockConfig
	Parent      string
	Children    []string
	Index       int
	Scope       string
	Permissions []string
	Inputs      []core.EventType
	Outputs     []core.EventType
	Schemas     []string
	EntryPoint  bool
	Diagnostics []core.Diagnostic
}

func (n *Node) HasInput(t core.EventType) bool {
	for _, in := range n.Inputs {
		if in == t {
			return true
		}
	}
	return false
}

func (n *Node) HasOutput(t core.EventType) bool {
	for _, out := range n.Outputs {
		if out == t {
			return true
		}
	}
	return false
}

// HasErrors reports whether the node carries an error diagnostic.
func (n *Node) HasErrors() bool {
	for _, d := range n.Diagnostics {
		if d.Severity == core.SeverityError {
			return true
		}
	}
	return false
}

type Link struct {
	Source  string
	Target  string
	Output  core.EventType
	Input   core.EventType
	Actor   core.EventActor
	Default bool
}

type Graph struct {
	PolicyID string
	Root     string
	nodes    map[string]*Node
	order    []string
	links    []Link
}

func New(policyID string) *Graph {
	return &Graph{
		PolicyID: policyID,
		nodes:    make(map[string]*Node),
	}
}

// Add stores n and appends it to its parent's children. It returns false
// when a node with the same id already exists.
func (g *Graph) Add(n *Node) bool {
	if _, ok := g.nodes[n.ID]; ok {
		return false
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	if n.Parent == "" {
		if g.Root == "" {
			g.Root = n.ID
		}
		return true
	}
	if p, ok := g.nodes[n.Parent]; ok {
		n.Index = len(p.Children)
		p.Children = append(p.Children, n.ID)
	}
	return true
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in insertion (depth-first) order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) Children(id string) []*Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		out = append(out, g.nodes[cid])
	}
	return out
}

func (g *Graph) Parent(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok || n.Parent == "" {
		return nil, false
	}
	return g.Node(n.Parent)
}

// NextSibling returns the sibling that follows id under the same parent.
func (g *Graph) NextSibling(id string) (*Node, bool) {
	p, ok := g.Parent(id)
	if !ok {
		return nil, false
	}
	n := g.nodes[id]
	if n.Index+1 >= len(p.Children) {
		return nil, false
	}
	return g.Node(p.Children[n.Index+1])
}

// Ancestors returns the chain from the parent of id up to the root.
func (g *Graph) Ancestors(id string) []*Node {
	var out []*Node
	for p, ok := g.Parent(id); ok; p, ok = g.Parent(p.ID) {
		out = append(out, p)
	}
	return out
}

func (g *Graph) AddLink(l Link) {
	g.links = append(g.links, l)
}

func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	copy(out, g.links)
	return out
}

// Scope returns the nodes that belong to the namespace owned by scopeID.
func (g *Graph) Scope(scopeID string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Scope == scopeID {
			out = append(out, n)
		}
	}
	return out
}
