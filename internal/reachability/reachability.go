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

// Package reachability computes which blocks can be reached by event
// propagation from an entry point.
package reachability

import (
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type Options struct {
	// StructuralFallback adds parent to child edges for every parent that
	// has no declared (non-default) outgoing event link.
	StructuralFallback bool
}

type Report struct {
	Reachable map[string]bool
	// Incoming and Outgoing count event links only, structural edges excluded.
	Incoming map[string]int
	Outgoing map[string]int
	Entries  []string
}

// Compute returns the reachability of every node of g.
func Compute(g *graph.Graph, opts Options) map[string]bool {
	return Analyze(g, opts).Reachable
}

// Analyze sweeps forward from the entry points of g. Entry points are the
// root, nodes marked as entry points, and nodes with outgoing but no
// incoming edges.
func Analyze(g *graph.Graph, opts Options) *Report {
	r := &Report{
		Reachable: make(map[string]bool, g.Len()),
		Incoming:  make(map[string]int, g.Len()),
		Outgoing:  make(map[string]int, g.Len()),
	}
	edges := make(map[string][]string, g.Len())
	in := make(map[string]int, g.Len())
	declared := make(map[string]bool)

	for _, l := range g.Links() {
		edges[l.Source] = append(edges[l.Source], l.Target)
		in[l.Target]++
		r.Outgoing[l.Source]++
		r.Incoming[l.Target]++
		if !l.Default {
			declared[l.Source] = true
		}
	}
	if opts.StructuralFallback {
		for _, n := range g.Nodes() {
			if declared[n.ID] {
				continue
			}
			for _, c := range n.Children {
				edges[n.ID] = append(edges[n.ID], c)
				in[c]++
			}
		}
	}

	var queue []string
	for _, n := range g.Nodes() {
		entry := n.ID == g.Root || n.EntryPoint || (in[n.ID] == 0 && len(edges[n.ID]) > 0)
		if entry {
			r.Entries = append(r.Entries, n.ID)
			r.Reachable[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range edges[id] {
			if r.Reachable[next] {
				continue
			}
			r.Reachable[next] = true
			queue = append(queue, next)
		}
	}
	for _, n := range g.Nodes() {
		if !r.Reachable[n.ID] {
			r.Reachable[n.ID] = false
		}
	}
	return r
}
