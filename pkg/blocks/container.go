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

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

const (
	TypeContainer = "interfaceContainerBlock"
	TypeStep      = "interfaceStepBlock"
)

// IsContainer reports whether blockType renders its children.
func IsContainer(blockType string) bool {
	return blockType == TypeContainer || blockType == TypeStep
}

func visibleChildren(bc *Context) []map[string]any {
	var out []map[string]any
	for _, child := range bc.Graph.Children(bc.Node.ID) {
		if bc.Visible != nil && !bc.Visible(child) {
			continue
		}
		out = append(out, map[string]any{
			"id":        child.ID,
			"blockType": child.Type,
			"tag":       child.Tag,
		})
	}
	return out
}

type Container struct{}

func (Container) Type() string { return TypeContainer }

func (Container) About() About {
	return About{
		Label:        "Container",
		Get:          true,
		Children:     ChildrenAny,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh},
		DefaultEvent: true,
		Common:       true,
	}
}

func (Container) GetData(_ context.Context, bc *Context) (map[string]any, error) {
	return map[string]any{
		"id":         bc.Node.ID,
		"blockType":  bc.Node.Type,
		"uiMetaData": bc.Node.Config.Options["uiMetaData"],
		"blocks":     visibleChildren(bc),
	}, nil
}

func (Container) RunAction(_ context.Context, _ *Context, _ core.Event) (*Result, error) {
	return &Result{Update: true}, nil
}

// Step shows one child at a time and advances as its children run.
type Step struct{}

const stepIndex = "index"

func (Step) Type() string { return TypeStep }

func (Step) About() About {
	return About{
		Label:        "Step",
		Get:          true,
		Children:     ChildrenAny,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh, core.EventRelease},
		Output:       []core.EventType{core.EventRefresh},
		DefaultEvent: true,
		Common:       true,
	}
}

func (Step) ValidateOptions(scope ValidationScope) {
	cfg := scope.Config()
	if len(cfg.Children) == 0 {
		scope.Warning("", "children", "Step has no children")
	}
	final := cfg.Strings("finalBlocks")
	for _, id := range final {
		found := false
		for _, c := range cfg.Children {
			if c.ID == id {
				found = true
				break
			}
		}
		if !found {
			scope.Error("finalBlocks", "Final block "+id+" is not a child of the step")
		}
	}
}

func (s Step) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	idx, err := s.index(ctx, bc)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"id":     bc.Node.ID,
		"index":  idx,
		"blocks": visibleChildren(bc),
	}
	if idx < len(bc.Node.Children) {
		data["active"] = bc.Node.Children[idx]
	}
	return data, nil
}

func (s Step) RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error) {
	switch evt.Input {
	case core.EventRun:
		if err := bc.State.Set(ctx, TierShort, stepIndex, 0); err != nil {
			return nil, err
		}
	case core.EventRelease:
		child, ok := bc.Graph.Node(evt.Source)
		if ok && child.Parent == bc.Node.ID {
			if err := s.move(ctx, bc, child.Index+1); err != nil {
				return nil, err
			}
		}
	}
	res := &Result{Update: true}
	return res.Emit(core.EventRefresh, nil), nil
}

func (s Step) ChildActivated(ctx context.Context, bc *Context, child *graph.Node) (*Result, error) {
	next := child.Index
	for _, id := range bc.Node.Config.Strings("finalBlocks") {
		if id == child.ID && bc.Node.Config.Bool("cyclic") {
			next = 0
		}
	}
	if err := s.move(ctx, bc, next); err != nil {
		return nil, err
	}
	return &Result{Update: true}, nil
}

func (s Step) index(ctx context.Context, bc *Context) (int, error) {
	var idx int
	if _, err := bc.State.Get(ctx, TierShort, stepIndex, &idx); err != nil {
		return 0, err
	}
	return idx, nil
}

func (s Step) move(ctx context.Context, bc *Context, idx int) error {
	n := len(bc.Node.Children)
	if idx >= n {
		if bc.Node.Config.Bool("cyclic") {
			idx = 0
		} else {
			idx = n - 1
		}
	}
	if idx < 0 {
		idx = 0
	}
	return bc.State.Set(ctx, TierShort, stepIndex, idx)
}
