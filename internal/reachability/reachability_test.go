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

package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

func node(id, parent string) *graph.Node {
	return &graph.Node{ID: id, Parent: parent, Config: &core.BlockConfig{ID: id}}
}

func run(src, tgt string) graph.Link {
	return graph.Link{Source: src, Target: tgt, Output: core.EventRun, Input: core.EventRun}
}

func TestChainReachableIsolatedNot(t *testing.T) {
	g := graph.New("p")
	g.Add(node("A", ""))
	g.Add(node("B", "A"))
	g.Add(node("C", "A"))
	g.Add(node("D", "A"))
	g.AddLink(run("A", "B"))
	g.AddLink(run("B", "C"))

	got := Compute(g, Options{StructuralFallback: true})
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true, "D": false}, got)
}

func TestStructuralFallback(t *testing.T) {
	g := graph.New("p")
	g.Add(node("root", ""))
	g.Add(node("form", "root"))
	g.Add(node("field", "form"))

	assert.True(t, Compute(g, Options{StructuralFallback: true})["field"])
	assert.False(t, Compute(g, Options{})["field"])
}

func TestDefaultLinksKeepFallback(t *testing.T) {
	g := graph.New("p")
	g.Add(node("root", ""))
	g.Add(node("step", "root"))
	g.Add(node("only", "step"))
	g.AddLink(graph.Link{Source: "step", Target: "root", Output: core.EventRefresh, Input: core.EventRefresh, Default: true})

	r := Analyze(g, Options{StructuralFallback: true})
	assert.True(t, r.Reachable["only"])
	assert.Equal(t, 1, r.Outgoing["step"])
	assert.Equal(t, 1, r.Incoming["root"])
}

func TestEntryPoints(t *testing.T) {
	g := graph.New("p")
	g.Add(node("root", ""))
	g.Add(node("a", "root"))
	g.AddLink(run("root", "a"))

	start := node("start", "root")
	start.EntryPoint = true
	g.Add(start)
	g.Add(node("after", "root"))
	g.AddLink(run("start", "after"))

	orphan := node("orphan", "root")
	g.Add(orphan)
	g.Add(node("sink", "root"))
	g.AddLink(run("orphan", "sink"))

	r := Analyze(g, Options{StructuralFallback: true})
	assert.ElementsMatch(t, []string{"root", "start", "orphan"}, r.Entries)
	for _, id := range []string{"a", "after", "sink"} {
		assert.True(t, r.Reachable[id], id)
	}
}

func TestCycleTerminates(t *testing.T) {
	g := graph.New("p")
	g.Add(node("root", ""))
	g.Add(node("x", "root"))
	g.Add(node("y", "root"))
	g.AddLink(run("root", "x"))
	g.AddLink(run("x", "y"))
	g.AddLink(run("y", "x"))

	got := Compute(g, Options{StructuralFallback: true})
	assert.True(t, got["x"])
	assert.True(t, got["y"])
}
