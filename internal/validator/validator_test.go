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
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/internal/schema"
	"github.com/wso2/api-platform/policy-engine/internal/tools"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testSchemas = map[string]string{
	"#farm":   `{"title":"Farm","entity":"VC","type":"object","required":["name"]}`,
	"#survey": `{"title":"Survey","entity":"VC","type":"object","$defs":{"#farm":{"type":"object"}}}`,
	"#orphan": `{"title":"Orphan","entity":"VC","type":"object","$defs":{"#missing":{"type":"object"}}}`,
	"#plain":  `{"title":"Plain","entity":"NONE","type":"object"}`,
}

func newValidator(t *testing.T, opts Options) (*Validator, *tools.Registry) {
	t.Helper()
	reg := blocks.NewRegistry(testLogger())
	blocks.RegisterBuiltins(reg)
	res := schema.NewResolver(testLogger())
	for iri, body := range testSchemas {
		require.NoError(t, res.Register(iri, []byte(body)))
	}
	tr := tools.NewRegistry(testLogger())
	return New(reg, res, tr, opts, testLogger()), tr
}

func block(id, blockType string, opts map[string]any, children ...*core.BlockConfig) *core.BlockConfig {
	return &core.BlockConfig{ID: id, BlockType: blockType, Options: opts, Children: children}
}

func policy(children ...*core.BlockConfig) *core.PolicyConfig {
	root := block("root", blocks.TypeContainer, nil, children...)
	root.Permissions = []string{core.RoleAny}
	return &core.PolicyConfig{
		ID:      "p1",
		Roles:   []string{"Registrant", "Verifier"},
		Schemas: []string{"#farm", "#plain"},
		Tokens:  []string{"0.0.5"},
		Root:    root,
	}
}

func validFlow() []*core.BlockConfig {
	return []*core.BlockConfig{
		block("req", blocks.TypeRequestVC, map[string]any{"schema": "#farm"}),
		block("send", blocks.TypeSendToGuardian, map[string]any{"documentStatus": "Issued"}),
		block("mint", blocks.TypeMint, map[string]any{"tokenId": "0.0.5", "rule": "amount"}),
	}
}

func messages(ds []core.Diagnostic) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Message)
	}
	return out
}

func TestValidPolicy(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	g, res := v.Validate(context.Background(), policy(validFlow()...))

	require.True(t, res.IsValid, "errors: %v", messages(res.Errors))
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Blocks, 4)
	assert.Equal(t, 4, g.Len())

	req, ok := g.Node("req")
	require.True(t, ok)
	assert.Equal(t, []string{"#farm"}, req.Schemas)

	links := g.Links()
	assert.Contains(t, links, linkOf("req", "send", core.EventRun))
	assert.Contains(t, links, linkOf("send", "mint", core.EventRun))
}

func TestDuplicateIDs(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	_, res := v.Validate(context.Background(), policy(
		block("dup", blocks.TypeInformation, nil),
		block("dup", blocks.TypeInformation, nil),
		block("dup", blocks.TypeInformation, nil),
	))

	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 2)
	for _, d := range res.Errors {
		assert.Equal(t, "UUID dup already exist", d.Message)
		assert.Equal(t, "dup", d.BlockID)
	}
}

func TestDuplicateModuleKeepsInnerNamespace(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	module := func(children ...*core.BlockConfig) *core.BlockConfig {
		return &core.BlockConfig{
			ID:        "m1",
			BlockType: core.BlockTypeModule,
			Variables: []core.Variable{{Name: "Approver", Type: core.VariableRole, Value: "Verifier"}},
			Children:  children,
		}
	}
	second := block("second", blocks.TypeInformation, nil)
	second.Permissions = []string{"Approver"}

	_, res := v.Validate(context.Background(), policy(module(), module(second)))

	m1, _ := res.Block("m1")
	assert.Equal(t, []string{"UUID m1 already exist"}, messages(m1.Errors))
	got, ok := res.Block("second")
	require.True(t, ok)
	assert.Empty(t, got.Errors)
	assert.Equal(t, "m1", got.Scope)
}

func TestMissingIDIsStable(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	p := policy(block("", blocks.TypeInformation, nil))
	_, first := v.Validate(context.Background(), p)
	_, second := v.Validate(context.Background(), p)

	assert.Contains(t, messages(first.Errors), "UUID is not set")
	assert.Equal(t, first, second)
}

func TestStructuralChecks(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	info := block("info", blocks.TypeInformation, nil, block("child", blocks.TypeInformation, nil))
	info.Tag = "intro"
	other := block("other", blocks.TypeInformation, nil)
	other.Tag = "intro"
	other.Permissions = []string{"Auditor"}

	_, res := v.Validate(context.Background(), policy(info, other, block("weird", "noSuchBlock", nil)))

	assert.False(t, res.IsValid)
	errs := messages(res.Errors)
	assert.Contains(t, errs, "Children are not allowed")
	assert.Contains(t, errs, "Permission Auditor not exist")
	assert.Contains(t, errs, "Unknown block type noSuchBlock")

	br, ok := res.Block("other")
	require.True(t, ok)
	var tagWarnings []string
	for _, d := range br.Warnings {
		if d.Code == core.CodeDuplicateTag {
			tagWarnings = append(tagWarnings, d.Message)
		}
	}
	assert.Equal(t, []string{"Tag intro already exist"}, tagWarnings)
	first, _ := res.Block("info")
	for _, d := range first.Warnings {
		assert.NotEqual(t, core.CodeDuplicateTag, d.Code, "the first occurrence is not flagged")
	}

	// Children of an invalid block are still validated.
	_, ok = res.Block("child")
	assert.True(t, ok)
}

func TestDeprecatedProperty(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	send := block("send", blocks.TypeSendToGuardian, map[string]any{"dataType": "vc-documents"})
	_, res := v.Validate(context.Background(), policy(send))

	br, _ := res.Block("send")
	var codes []string
	for _, d := range br.Warnings {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, core.CodeDeprecationProp)
	assert.True(t, res.IsValid)
}

func TestCircularToolInclusion(t *testing.T) {
	v, tr := newValidator(t, DefaultOptions())
	_, err := tr.Publish(&core.ToolDefinition{MessageID: "A", Config: &core.BlockConfig{
		ID: "a-root", BlockType: core.BlockTypeTool,
		Children: []*core.BlockConfig{{ID: "a-inner", BlockType: core.BlockTypeTool, MessageID: "B"}},
	}})
	require.NoError(t, err)
	_, err = tr.Publish(&core.ToolDefinition{MessageID: "B", Config: &core.BlockConfig{
		ID: "b-root", BlockType: core.BlockTypeTool,
		Children: []*core.BlockConfig{{ID: "b-inner", BlockType: core.BlockTypeTool, MessageID: "A"}},
	}})
	require.NoError(t, err)

	_, res := v.Validate(context.Background(), policy(&core.BlockConfig{ID: "t1", BlockType: core.BlockTypeTool, MessageID: "A"}))

	assert.False(t, res.IsValid)
	errs := messages(res.Errors)
	assert.Contains(t, errs, "Circular tool inclusion: A -> B -> A")
	t1, _ := res.Block("t1")
	assert.Contains(t, messages(t1.Errors), "Tool is invalid")
	// The rest of the policy is still reported.
	_, ok := res.Block("root")
	assert.True(t, ok)
}

func TestToolNotFound(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	_, res := v.Validate(context.Background(), policy(
		&core.BlockConfig{ID: "t1", BlockType: core.BlockTypeTool, MessageID: "missing"},
		block("info", blocks.TypeInformation, nil),
	))
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Tool not found", res.Errors[0].Message)
	assert.Equal(t, "t1", res.Errors[0].BlockID)
}

func TestToolNamespace(t *testing.T) {
	v, tr := newValidator(t, DefaultOptions())
	inner := block("tool-info", blocks.TypeInformation, nil)
	inner.Permissions = []string{"ToolRole"}
	_, err := tr.Publish(&core.ToolDefinition{MessageID: "T", Config: &core.BlockConfig{
		ID:          "tool-root",
		BlockType:   core.BlockTypeTool,
		InputEvents: []core.ModuleEvent{{Name: "start"}},
		Variables:   []core.Variable{{Name: "ToolRole", Type: core.VariableRole}},
		Children:    []*core.BlockConfig{inner},
	}})
	require.NoError(t, err)

	embedding := &core.BlockConfig{
		ID: "t1", BlockType: core.BlockTypeTool, MessageID: "T",
		Variables: []core.Variable{{Name: "ToolRole", Value: "Registrant"}},
	}
	g, res := v.Validate(context.Background(), policy(embedding))

	require.True(t, res.IsValid, "errors: %v", messages(res.Errors))
	require.Len(t, res.Scopes, 1)
	assert.Equal(t, core.ScopeResult{ID: "t1", BlockType: core.BlockTypeTool, IsValid: true, Blocks: 1}, res.Scopes[0])

	n, _ := g.Node("t1")
	assert.True(t, n.HasInput("start"))
	assert.Equal(t, "Registrant", n.Config.Variables[0].Value)
	in, _ := g.Node("tool-info")
	assert.Equal(t, "t1", in.Scope)
}

func TestToolCannotContainModule(t *testing.T) {
	v, tr := newValidator(t, DefaultOptions())
	_, err := tr.Publish(&core.ToolDefinition{MessageID: "T", Config: &core.BlockConfig{
		ID: "tool-root", BlockType: core.BlockTypeTool,
		Children: []*core.BlockConfig{{ID: "m", BlockType: core.BlockTypeModule}},
	}})
	require.NoError(t, err)

	_, res := v.Validate(context.Background(), policy(&core.BlockConfig{ID: "t1", BlockType: core.BlockTypeTool, MessageID: "T"}))
	assert.Contains(t, messages(res.Errors), "The tool can't contain another module")
	assert.Contains(t, messages(res.Errors), "Tool is invalid")
}

func TestModuleNamespace(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	inside := block("approve", blocks.TypeInformation, nil)
	inside.Permissions = []string{"Approver"}
	outside := block("leak", blocks.TypeInformation, nil)
	outside.Permissions = []string{"Approver"}
	module := &core.BlockConfig{
		ID:           "m1",
		BlockType:    core.BlockTypeModule,
		Variables:    []core.Variable{{Name: "Approver", Type: core.VariableRole, Value: "Verifier"}, {Name: "x", Type: "Bogus"}},
		InputEvents:  []core.ModuleEvent{{Name: "start"}},
		OutputEvents: []core.ModuleEvent{{Name: "start"}},
		Children:     []*core.BlockConfig{inside},
	}

	_, res := v.Validate(context.Background(), policy(module, outside))

	m1, _ := res.Block("m1")
	assert.Contains(t, messages(m1.Errors), "Event 'start' already exist")
	assert.Contains(t, messages(m1.Errors), "Variable x has unknown type Bogus")

	approve, _ := res.Block("approve")
	assert.True(t, approve.IsValid)
	assert.Equal(t, "m1", approve.Scope)

	leak, _ := res.Block("leak")
	assert.Equal(t, []string{"Permission Approver not exist"}, messages(leak.Errors))
}

func TestEventWiring(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	inner := block("inner", blocks.TypeInformation, nil)
	module := &core.BlockConfig{
		ID:          "m1",
		BlockType:   core.BlockTypeModule,
		InputEvents: []core.ModuleEvent{{Name: "start"}},
		Children:    []*core.BlockConfig{inner},
		Events:      []core.EventConfig{{Target: "inner", Output: "start", Input: core.EventRun}},
	}
	req := block("req", blocks.TypeRequestVC, map[string]any{"schema": "#farm"})
	req.StopPropagation = true
	req.Events = []core.EventConfig{
		{Target: "m1", Output: core.EventRun, Input: "start"},
		{Target: "inner", Output: core.EventRun, Input: core.EventRun},
		{Target: "ghost", Output: core.EventRun, Input: core.EventRun},
		{Target: "send", Output: "Nope", Input: core.EventRun},
		{Target: "send", Output: core.EventRun, Input: core.EventRun, Disabled: true},
	}

	g, res := v.Validate(context.Background(), policy(req, module, block("send", blocks.TypeSendToGuardian, nil)))

	reqRes, _ := res.Block("req")
	assert.ElementsMatch(t, []string{
		"Event crosses module boundary",
		"Event target ghost does not exist",
		"Event output Nope is not supported by block req",
	}, messages(reqRes.Errors))

	links := g.Links()
	assert.Contains(t, links, graph.Link{Source: "m1", Target: "inner", Output: "start", Input: core.EventRun})
	assert.Contains(t, links, graph.Link{Source: "req", Target: "m1", Output: core.EventRun, Input: "start"})
	for _, l := range links {
		assert.False(t, l.Source == "req" && l.Target == "send", "disabled and stopped events must not link")
	}
}

func TestSchemaResolution(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	p := policy(
		block("a", blocks.TypeRequestVC, map[string]any{"schema": "#unknown"}),
		block("b", blocks.TypeRequestVC, map[string]any{"schema": "#plain"}),
		block("c", blocks.TypeRequestVC, map[string]any{"schema": "#orphan"}),
		block("d", blocks.TypeRequestVC, map[string]any{"schema": "#survey"}),
	)
	p.Schemas = append(p.Schemas, "#orphan", "#survey")

	_, res := v.Validate(context.Background(), p)

	a, _ := res.Block("a")
	assert.Equal(t, []string{`Schema with id "#unknown" does not exist`}, messages(a.Errors))
	b, _ := res.Block("b")
	require.Len(t, b.Errors, 1)
	assert.Contains(t, b.Errors[0].Message, "has entity NONE")
	c, _ := res.Block("c")
	assert.Equal(t, []string{`Schema with id "#orphan" is not supported`}, messages(c.Errors))
	d, _ := res.Block("d")
	assert.True(t, d.IsValid)

	byIRI := map[string]core.SchemaResult{}
	for _, s := range res.Schemas {
		byIRI[s.IRI] = s
	}
	assert.False(t, byIRI["#orphan"].IsValid)
	assert.True(t, byIRI["#survey"].IsValid)
	assert.True(t, byIRI["#farm"].IsValid)
}

func TestIgnoreRulesHideWarningsOnly(t *testing.T) {
	v, _ := newValidator(t, Options{Reachability: true})
	p := policy(append([]*core.BlockConfig{block("info", blocks.TypeInformation, nil)}, validFlow()...)...)

	_, plain := v.Validate(context.Background(), p)
	info, _ := plain.Block("info")
	var codes []string
	for _, d := range info.Warnings {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, core.CodeUnreachableBlock)

	_, ignored := v.Validate(context.Background(), p, core.IgnoreRule{Code: core.CodeUnreachableBlock})
	info, _ = ignored.Block("info")
	for _, d := range info.Warnings {
		assert.NotEqual(t, core.CodeUnreachableBlock, d.Code)
	}
	for _, d := range ignored.Warnings {
		assert.NotEqual(t, core.CodeUnreachableBlock, d.Code)
	}

	assert.Equal(t, plain.IsValid, ignored.IsValid)
	assert.True(t, plain.IsValid)
}

func TestIgnored(t *testing.T) {
	warn := core.Diagnostic{Code: core.CodeDeprecationProp, Severity: core.SeverityWarning, BlockType: blocks.TypeSendToGuardian, Property: "options.dataType", Message: "Property dataType is deprecated"}

	assert.False(t, Ignored([]core.IgnoreRule{{}}, warn), "an empty rule matches nothing")
	assert.True(t, Ignored([]core.IgnoreRule{{Property: "options.*"}}, warn))
	assert.True(t, Ignored([]core.IgnoreRule{{Contains: "DEPRECATED", Severity: core.SeverityWarning}}, warn))
	assert.False(t, Ignored([]core.IgnoreRule{{Contains: "deprecated", Severity: core.SeverityInfo}}, warn))
	assert.False(t, Ignored([]core.IgnoreRule{{BlockType: blocks.TypeMint}}, warn))

	err := core.Diagnostic{Severity: core.SeverityError, Message: "UUID x already exist"}
	assert.False(t, Ignored([]core.IgnoreRule{{Contains: "UUID"}}, err))
}

func TestValidationIsIdempotent(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	info := block("info", blocks.TypeInformation, nil)
	info.Tag = "t"
	dup := block("info", blocks.TypeInformation, nil)
	dup.Tag = "t"
	p := policy(append([]*core.BlockConfig{info, dup, block("", "bogus", nil)}, validFlow()...)...)

	_, first := v.Validate(context.Background(), p)
	_, second := v.Validate(context.Background(), p)
	assert.Equal(t, first, second)
}

func TestValidateAll(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	bad := policy(block("x", "bogus", nil))
	bad.ID = "bad"
	policies := []*core.PolicyConfig{policy(validFlow()...), bad}

	results, err := v.ValidateAll(context.Background(), policies)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)
	assert.Equal(t, "bad", results[1].PolicyID)
}

func TestNoRoot(t *testing.T) {
	v, _ := newValidator(t, DefaultOptions())
	_, res := v.Validate(context.Background(), &core.PolicyConfig{ID: "empty"})
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.Contains(res.Errors[0].Message, "no root"))
}

func linkOf(src, tgt string, evt core.EventType) graph.Link {
	return graph.Link{Source: src, Target: tgt, Output: evt, Input: evt, Default: true}
}
