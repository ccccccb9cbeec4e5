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

package validator

import (
	"fmt"

	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

// link resolves default and declared event wiring into graph links.
func (w *walk) link() {
	for _, n := range w.graph.Nodes() {
		w.defaultLinks(n)
		for _, ec := range n.Config.Events {
			if ec.Disabled {
				continue
			}
			w.declaredLink(n, ec)
		}
	}
}

func (w *walk) defaultLinks(n *graph.Node) {
	about, ok := w.v.registry.About(n.Type)
	if !ok || !about.DefaultEvent {
		return
	}
	if n.HasOutput(core.EventRun) && !n.Config.StopPropagation {
		if next, ok := w.graph.NextSibling(n.ID); ok && next.HasInput(core.EventRun) {
			w.graph.AddLink(graph.Link{Source: n.ID, Target: next.ID, Output: core.EventRun, Input: core.EventRun, Default: true})
		}
	}
	parent, ok := w.graph.Parent(n.ID)
	if !ok {
		return
	}
	if n.HasOutput(core.EventRefresh) && blocks.IsContainer(parent.Type) && parent.HasInput(core.EventRefresh) {
		w.graph.AddLink(graph.Link{Source: n.ID, Target: parent.ID, Output: core.EventRefresh, Input: core.EventRefresh, Default: true})
	}
	if n.HasOutput(core.EventRelease) && parent.Type == blocks.TypeStep && parent.HasInput(core.EventRelease) {
		w.graph.AddLink(graph.Link{Source: n.ID, Target: parent.ID, Output: core.EventRelease, Input: core.EventRelease, Default: true})
	}
}

func (w *walk) declaredLink(n *graph.Node, ec core.EventConfig) {
	srcID := ec.Source
	if srcID == "" {
		srcID = n.ID
	}
	src, ok := w.graph.Node(srcID)
	if !ok {
		w.errorf(n, "events", fmt.Sprintf("Event source %s does not exist", srcID))
		return
	}
	tgt, ok := w.graph.Node(ec.Target)
	if !ok {
		w.errorf(n, "events", fmt.Sprintf("Event target %s does not exist", ec.Target))
		return
	}
	switch ec.Actor {
	case core.ActorInitiator, core.ActorOwner, core.ActorIssuer:
	default:
		w.errorf(n, "events", fmt.Sprintf("Unknown event actor %s", ec.Actor))
		return
	}
	if !src.HasOutput(ec.Output) {
		w.errorf(n, "events", fmt.Sprintf("Event output %s is not supported by block %s", ec.Output, src.ID))
		return
	}
	if !tgt.HasInput(ec.Input) {
		w.errorf(n, "events", fmt.Sprintf("Event input %s is not supported by block %s", ec.Input, tgt.ID))
		return
	}
	if !sameBoundary(src, tgt) {
		w.errorf(n, "events", "Event crosses module boundary")
		return
	}
	w.graph.AddLink(graph.Link{
		Source: src.ID,
		Target: tgt.ID,
		Output: ec.Output,
		Input:  ec.Input,
		Actor:  ec.Actor,
	})
}

// sameBoundary allows links inside one namespace and between a module or
// tool and the blocks directly inside it.
func sameBoundary(src, tgt *graph.Node) bool {
	return src.Scope == tgt.Scope || src.ID == tgt.Scope || tgt.ID == src.Scope
}
