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
)

// boundary relays named events across a module or tool border. An input
// event arriving from outside is re-emitted inward under the same name,
// and an output event raised inside is re-emitted to the parent scope.
type boundary struct {
	blockType string
}

// Module is an embedded sub-policy with its own namespace.
type Module struct{ boundary }

// Tool is a published sub-policy embedded by message id and hash.
type Tool struct{ boundary }

func NewModule() Module { return Module{boundary{core.BlockTypeModule}} }
func NewTool() Tool     { return Tool{boundary{core.BlockTypeTool}} }

func (b boundary) Type() string { return b.blockType }

func (b boundary) About() About {
	return About{
		Label:    b.blockType,
		Children: ChildrenAny,
		Control:  ControlSpecial,
	}
}

// Events exposes every declared event name both ways: parents wire into
// input names and inner blocks wire into output names.
func (boundary) Events(cfg *core.BlockConfig) ([]core.EventType, []core.EventType) {
	var names []core.EventType
	for _, e := range cfg.InputEvents {
		names = append(names, core.EventType(e.Name))
	}
	for _, e := range cfg.OutputEvents {
		names = append(names, core.EventType(e.Name))
	}
	return names, names
}

func (boundary) RunAction(_ context.Context, _ *Context, evt core.Event) (*Result, error) {
	res := &Result{}
	return res.Emit(evt.Input, evt.Data), nil
}
