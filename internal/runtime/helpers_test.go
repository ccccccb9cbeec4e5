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

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wso2/api-platform/policy-engine/internal/state"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

const (
	typeGate       = "testGate"
	typeCounter    = "testCounter"
	typeFail       = "testFail"
	typeEcho       = "testEcho"
	typeAnchor     = "testAnchor"
	typeBackground = "testBackground"
	typeHeld       = "testHeldCounter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// gateBlock stores the posted value and optionally waits for release
// before finishing.
type gateBlock struct {
	entered chan struct{}
	release chan struct{}
}

func (*gateBlock) Type() string { return typeGate }
func (*gateBlock) About() blocks.About {
	return blocks.About{Post: true, Get: true, Output: []core.EventType{core.EventRun}}
}

func (g *gateBlock) GetData(ctx context.Context, bc *blocks.Context) (map[string]any, error) {
	var v string
	found, err := bc.State.Get(ctx, blocks.TierShort, "value", &v)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"id": bc.Node.ID}
	if found {
		data["value"] = v
	}
	return data, nil
}

func (g *gateBlock) SetData(ctx context.Context, bc *blocks.Context, payload map[string]any) (*blocks.Result, error) {
	v := fmt.Sprint(payload["v"])
	if err := bc.State.Set(ctx, blocks.TierShort, "value", v); err != nil {
		return nil, err
	}
	if g.entered != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
	}
	if g.release != nil {
		<-g.release
	}
	res := &blocks.Result{Data: map[string]any{"value": v}}
	return res.Emit(core.EventRun, map[string]any{"v": v}), nil
}

// counterBlock counts Run events in the long tier.
type counterBlock struct{}

func (counterBlock) Type() string { return typeCounter }
func (counterBlock) About() blocks.About {
	return blocks.About{Get: true, Input: []core.EventType{core.EventRun}, Output: []core.EventType{core.EventRun}}
}

func (counterBlock) GetData(ctx context.Context, bc *blocks.Context) (map[string]any, error) {
	var n int
	if _, err := bc.State.Get(ctx, blocks.TierLong, "count", &n); err != nil {
		return nil, err
	}
	return map[string]any{"count": n, "user": bc.User.DID}, nil
}

func (counterBlock) RunAction(ctx context.Context, bc *blocks.Context, evt core.Event) (*blocks.Result, error) {
	var n int
	if _, err := bc.State.Get(ctx, blocks.TierLong, "count", &n); err != nil {
		return nil, err
	}
	if err := bc.State.Set(ctx, blocks.TierLong, "count", n+1); err != nil {
		return nil, err
	}
	res := &blocks.Result{Update: true}
	return res.Emit(core.EventRun, evt.Data), nil
}

// heldCounterBlock counts like counterBlock but waits for release
// between reading and writing the count.
type heldCounterBlock struct {
	entered chan struct{}
	release chan struct{}
}

func (*heldCounterBlock) Type() string { return typeHeld }
func (*heldCounterBlock) About() blocks.About {
	return blocks.About{Get: true, Input: []core.EventType{core.EventRun}}
}

func (*heldCounterBlock) GetData(ctx context.Context, bc *blocks.Context) (map[string]any, error) {
	return counterBlock{}.GetData(ctx, bc)
}

func (h *heldCounterBlock) RunAction(ctx context.Context, bc *blocks.Context, _ core.Event) (*blocks.Result, error) {
	var n int
	if _, err := bc.State.Get(ctx, blocks.TierLong, "count", &n); err != nil {
		return nil, err
	}
	if h.entered != nil {
		select {
		case h.entered <- struct{}{}:
		default:
		}
	}
	if h.release != nil {
		<-h.release
	}
	return &blocks.Result{}, bc.State.Set(ctx, blocks.TierLong, "count", n+1)
}

type failBlock struct{}

func (failBlock) Type() string { return typeFail }
func (failBlock) About() blocks.About {
	return blocks.About{Input: []core.EventType{core.EventRun}, Output: []core.EventType{core.EventError}}
}

func (failBlock) RunAction(context.Context, *blocks.Context, core.Event) (*blocks.Result, error) {
	return nil, core.Collaborator("mint", errors.New("token service unavailable"))
}

type echoBlock struct{}

func (echoBlock) Type() string { return typeEcho }
func (echoBlock) About() blocks.About {
	return blocks.About{Input: []core.EventType{core.EventRun}, Output: []core.EventType{core.EventRun}}
}

func (echoBlock) RunAction(_ context.Context, _ *blocks.Context, evt core.Event) (*blocks.Result, error) {
	res := &blocks.Result{}
	return res.Emit(core.EventRun, evt.Data), nil
}

type anchorBlock struct{}

func (anchorBlock) Type() string { return typeAnchor }
func (anchorBlock) About() blocks.About {
	return blocks.About{Input: []core.EventType{core.EventRun}}
}

func (anchorBlock) RunAction(ctx context.Context, bc *blocks.Context, evt core.Event) (*blocks.Result, error) {
	if _, err := bc.Services.Ledger.Anchor(ctx, core.LedgerMessage{PolicyID: bc.PolicyKey, BlockID: bc.Node.ID, Kind: core.LedgerDocument}); err != nil {
		return nil, core.Collaborator("ledger", err)
	}
	if _, err := bc.Services.Mint.Mint(ctx, core.MintRequest{PolicyID: bc.PolicyKey, TokenID: "0.0.5", Amount: 1}); err != nil {
		return nil, core.Collaborator("mint", err)
	}
	return &blocks.Result{}, nil
}

// backgroundBlock schedules a task that marks itself done in the long tier.
type backgroundBlock struct{}

func (backgroundBlock) Type() string { return typeBackground }
func (backgroundBlock) About() blocks.About {
	return blocks.About{Post: true, Get: true, Output: []core.EventType{core.EventRun}}
}

func (backgroundBlock) GetData(ctx context.Context, bc *blocks.Context) (map[string]any, error) {
	var done bool
	if _, err := bc.State.Get(ctx, blocks.TierLong, "done", &done); err != nil {
		return nil, err
	}
	return map[string]any{"done": done}, nil
}

func (backgroundBlock) SetData(_ context.Context, bc *blocks.Context, _ map[string]any) (*blocks.Result, error) {
	bc.Background("mark", func(ctx context.Context, bg *blocks.Context) {
		_ = bg.State.Set(ctx, blocks.TierLong, "done", true)
	})
	res := &blocks.Result{}
	return res.Emit(core.EventRun, nil), nil
}

type fakeLedger struct {
	mu   sync.Mutex
	msgs []core.LedgerMessage
}

func (f *fakeLedger) Anchor(_ context.Context, msg core.LedgerMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return fmt.Sprintf("msg-%d", len(f.msgs)), nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// switchLedger fails every Anchor call while err is set.
type switchLedger struct {
	mu  sync.Mutex
	err error
	n   int
}

func (f *switchLedger) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *switchLedger) Anchor(context.Context, core.LedgerMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("msg-%d", f.n), nil
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(_ context.Context, subject string, claims map[string]any) (*core.Credential, error) {
	return &core.Credential{ID: "vc-" + subject, Subject: subject, Claims: claims}, nil
}

type fakeMint struct{ calls int }

func (f *fakeMint) Mint(_ context.Context, req core.MintRequest) (*core.MintResult, error) {
	f.calls++
	return &core.MintResult{TransactionID: "tx", TokenID: req.TokenID, Amount: req.Amount}, nil
}

func (f *fakeMint) Wipe(ctx context.Context, req core.MintRequest) (*core.MintResult, error) {
	return f.Mint(ctx, req)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []core.ExternalEvent
}

func (f *fakePublisher) Publish(_ context.Context, evt core.ExternalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	updated []string
}

func (f *fakeNotifier) BlockUpdated(_, blockID, userDID string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, blockID+"@"+userDID)
}

type fakeRoles map[string]string

func (f fakeRoles) RoleOf(_ context.Context, _, did string) (string, string, error) {
	role, ok := f[did]
	if !ok {
		return "", "", core.ErrGroupNotFound
	}
	return role, "group-1", nil
}

type fakeObserver struct {
	mu      sync.Mutex
	results []string
	loaded  int
}

func (f *fakeObserver) DispatchObserved(_, result string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

func (f *fakeObserver) PoliciesLoaded(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = n
}

type fixture struct {
	engine *Engine
	cache  *state.Cache
	gate   *gateBlock
	held   *heldCounterBlock
}

func newFixture(t *testing.T, configure func(*Deps)) *fixture {
	t.Helper()
	registry := blocks.NewRegistry(testLogger())
	blocks.RegisterBuiltins(registry)
	gate := &gateBlock{}
	held := &heldCounterBlock{}
	for _, b := range []blocks.Behavior{gate, held, counterBlock{}, failBlock{}, echoBlock{}, anchorBlock{}, backgroundBlock{}} {
		registry.Register(b)
	}
	cache := state.NewCache(state.NewMemoryStore(), 0, 0)
	deps := Deps{Registry: registry, Cache: cache}
	if configure != nil {
		configure(&deps)
	}
	eng := NewEngine(deps, testLogger())
	t.Cleanup(func() {
		eng.UnloadAll(context.Background())
		eng.Wait()
	})
	return &fixture{engine: eng, cache: cache, gate: gate, held: held}
}

func testNode(id, typ, parent string, perms ...string) *graph.Node {
	return &graph.Node{
		ID:          id,
		Type:        typ,
		Parent:      parent,
		Permissions: perms,
		Config:      &core.BlockConfig{ID: id, BlockType: typ, Permissions: perms},
	}
}

func testPolicy() *core.PolicyConfig {
	return &core.PolicyConfig{ID: "p1", Name: "Test", Owner: "did:owner", Roles: []string{"Registrant", "Verifier"}}
}

// flowGraph is root -> gate -> counter, with the gate open to Registrants.
func flowGraph() *graph.Graph {
	g := graph.New("p1")
	g.Add(testNode("root", blocks.TypeContainer, "", core.RoleAny))
	g.Add(testNode("gate", typeGate, "root", "Registrant"))
	g.Add(testNode("counter", typeCounter, "root", core.RoleAny))
	g.AddLink(graph.Link{Source: "gate", Target: "counter", Output: core.EventRun, Input: core.EventRun})
	return g
}

var registrant = core.User{DID: "did:user:1", Role: "Registrant"}
