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

const (
	TypeAction      = "interfaceActionBlock"
	TypeInformation = "informationBlock"
)

type actionOption struct {
	Title string
	Value string
	Tag   string
}

func actionOptions(cfg *core.BlockConfig) []actionOption {
	meta, _ := cfg.Options["uiMetaData"].(map[string]any)
	if meta == nil {
		return nil
	}
	probe := &core.BlockConfig{Options: meta}
	var out []actionOption
	for _, m := range probe.Maps("options") {
		o := actionOption{}
		o.Title, _ = m["title"].(string)
		o.Value = fmt.Sprint(m["value"])
		o.Tag, _ = m["tag"].(string)
		out = append(out, o)
	}
	return out
}

// Action lets a user pick an option for a document; each option emits the
// event named by its tag.
type Action struct{}

func (Action) Type() string { return TypeAction }

func (Action) About() About {
	return About{
		Label:    "Action",
		Post:     true,
		Get:      true,
		Children: ChildrenSpecial,
		Control:  ControlUI,
		Output:   []core.EventType{core.EventRun, core.EventRefresh},
	}
}

func (Action) Events(cfg *core.BlockConfig) ([]core.EventType, []core.EventType) {
	var outs []core.EventType
	for _, o := range actionOptions(cfg) {
		if o.Tag != "" {
			outs = append(outs, core.EventType(o.Tag))
		}
	}
	return nil, outs
}

func (Action) ValidateOptions(scope ValidationScope) {
	seen := make(map[string]bool)
	for _, o := range actionOptions(scope.Config()) {
		if o.Tag == "" {
			scope.Error("uiMetaData.options", "Option tag is not set")
			continue
		}
		if seen[o.Tag] {
			scope.Error("uiMetaData.options", fmt.Sprintf("Option tag %s already exist", o.Tag))
		}
		seen[o.Tag] = true
	}
}

func (Action) GetData(_ context.Context, bc *Context) (map[string]any, error) {
	cfg := bc.Node.Config
	opts := make([]map[string]any, 0)
	for _, o := range actionOptions(cfg) {
		opts = append(opts, map[string]any{"title": o.Title, "value": o.Value, "tag": o.Tag})
	}
	return map[string]any{
		"id":      bc.Node.ID,
		"type":    cfg.String("type"),
		"field":   cfg.String("field"),
		"options": opts,
	}, nil
}

func (Action) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	tag, _ := payload["tag"].(string)
	docID, _ := payload["document"].(string)
	var chosen *actionOption
	for _, o := range actionOptions(bc.Node.Config) {
		if o.Tag == tag {
			chosen = &o
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: unknown option tag %q", core.ErrInvalidPayload, tag)
	}
	doc, err := bc.Documents.Get(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("%w: document=%s: %v", core.ErrInvalidPayload, docID, err)
	}
	if field := bc.Node.Config.String("field"); field != "" {
		if doc.Data == nil {
			doc.Data = make(map[string]any)
		}
		doc.Data[field] = chosen.Value
		if err := bc.Documents.Save(ctx, doc); err != nil {
			return nil, err
		}
	}
	res := &Result{Data: map[string]any{"document": doc.ID, "tag": tag}}
	res.Emit(core.EventType(chosen.Tag), Carry(doc))
	res.Emit(core.EventRefresh, nil)
	return res, nil
}

// Information renders static text.
type Information struct{}

func (Information) Type() string { return TypeInformation }

func (Information) About() About {
	return About{
		Label:        "Information",
		Get:          true,
		Children:     ChildrenNone,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh},
		DefaultEvent: true,
		Common:       true,
	}
}

func (Information) GetData(_ context.Context, bc *Context) (map[string]any, error) {
	return map[string]any{
		"id":         bc.Node.ID,
		"uiMetaData": bc.Node.Config.Options["uiMetaData"],
	}, nil
}

func (Information) RunAction(_ context.Context, _ *Context, _ core.Event) (*Result, error) {
	return &Result{Update: true}, nil
}
