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
	"fmt"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const TypeSwitch = "switchBlock"

const (
	flowFirstTrue = "firstTrue"
	flowAllTrue   = "allTrue"
)

type condition struct {
	Tag   string
	Type  string
	Field string
	Value string
}

func conditions(cfg *core.BlockConfig) []condition {
	var out []condition
	for _, m := range cfg.Maps("conditions") {
		c := condition{}
		c.Tag, _ = m["tag"].(string)
		c.Type, _ = m["type"].(string)
		c.Field, _ = m["field"].(string)
		if v, ok := m["value"]; ok && v != nil {
			c.Value = fmt.Sprint(v)
		}
		out = append(out, c)
	}
	return out
}

func (c condition) holds(doc *core.Document) bool {
	got := fmt.Sprint(documentField(doc, c.Field))
	switch c.Type {
	case "equal":
		return got == c.Value
	case "not_equal":
		return got != c.Value
	default:
		return true
	}
}

// Switch routes documents to the outputs named by matching conditions.
type Switch struct{}

func (Switch) Type() string { return TypeSwitch }

func (Switch) About() About {
	return About{
		Label:    "Switch",
		Children: ChildrenNone,
		Control:  ControlServer,
		Input:    []core.EventType{core.EventRun},
		Output:   []core.EventType{core.EventRefresh},
	}
}

func (Switch) Events(cfg *core.BlockConfig) ([]core.EventType, []core.EventType) {
	var outs []core.EventType
	for _, c := range conditions(cfg) {
		if c.Tag != "" {
			outs = append(outs, core.EventType(c.Tag))
		}
	}
	return nil, outs
}

func (Switch) ValidateOptions(scope ValidationScope) {
	cfg := scope.Config()
	switch cfg.String("executionFlow") {
	case "", flowFirstTrue, flowAllTrue:
	default:
		scope.Error("executionFlow", fmt.Sprintf("Unknown execution flow %q", cfg.String("executionFlow")))
	}
	tags := make(map[string]bool)
	for _, c := range conditions(cfg) {
		if c.Tag == "" {
			scope.Error("conditions", "Condition tag is not set")
			continue
		}
		if tags[c.Tag] {
			scope.Error("conditions", fmt.Sprintf("Condition tag %s already exist", c.Tag))
		}
		tags[c.Tag] = true
		switch c.Type {
		case "equal", "not_equal":
			if c.Field == "" {
				scope.Error("conditions", fmt.Sprintf("Condition %s has no field", c.Tag))
			}
		case "unconditional":
		default:
			scope.Error("conditions", fmt.Sprintf("Unknown condition type %q", c.Type))
		}
	}
}

func (Switch) RunAction(_ context.Context, bc *Context, evt core.Event) (*Result, error) {
	docs := DocumentsOf(evt.Data)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", core.ErrInvalidPayload)
	}
	flow := bc.Node.Config.String("executionFlow")
	res := &Result{}
	for _, c := range conditions(bc.Node.Config) {
		if !c.holds(docs[0]) {
			continue
		}
		res.Emit(core.EventType(c.Tag), evt.Data)
		if flow != flowAllTrue {
			break
		}
	}
	res.Emit(core.EventRefresh, nil)
	return res, nil
}
