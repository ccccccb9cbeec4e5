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

// Package runtime executes loaded policies. Each loaded policy is an
// instance addressed by an opaque handle; calls against an instance are
// serialized per (block, user) and run their causal chain synchronously.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/internal/groups"
	"github.com/wso2/api-platform/policy-engine/internal/ledger"
	"github.com/wso2/api-platform/policy-engine/internal/logging"
	"github.com/wso2/api-platform/policy-engine/internal/routing"
	"github.com/wso2/api-platform/policy-engine/internal/state"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

// DefaultMaxDepth bounds the length of one causal chain.
const DefaultMaxDepth = 64

// Observer receives dispatch and lifecycle measurements.
type Observer interface {
	DispatchObserved(blockType, result string, elapsed time.Duration)
	PoliciesLoaded(n int)
}

// RoleResolver looks up the role and group a user holds in a policy.
type RoleResolver interface {
	RoleOf(ctx context.Context, policyKey, userDID string) (role, group string, err error)
}

type Deps struct {
	Registry  *blocks.Registry
	Cache     *state.Cache
	Schemas   core.SchemaResolver
	Mint      core.MintService
	Ledger    core.LedgerAnchor
	Groups    blocks.GroupJoiner
	Roles     RoleResolver
	// Issuer signs credentials for the private group store of dry-run
	// instances. Without it dry-run instances cannot join groups.
	Issuer    core.CredentialIssuer
	Publisher core.ExternalEventPublisher
	Notifier  core.Notifier
	Observer  Observer
	EventLog  *logging.EventLogger
	MaxDepth  int
}

type instance struct {
	handle   string
	key      string
	policy   *core.PolicyConfig
	graph    *graph.Graph
	links    *routing.Table
	dryRun   bool
	services *blocks.Services
	recorder *ledger.Recorder
	sandbox  *groups.Manager
	roles    RoleResolver
	inflight *inflight
	eventLog *logging.EventLogger
	ctx      context.Context
	cancel   context.CancelFunc
}

type Engine struct {
	instances sync.Map
	deps      Deps
	logger    *slog.Logger
	bg        sync.WaitGroup
}

func NewEngine(deps Deps, logger *slog.Logger) *Engine {
	if deps.MaxDepth <= 0 {
		deps.MaxDepth = DefaultMaxDepth
	}
	if deps.EventLog == nil {
		deps.EventLog = logging.NewEventLogger(logger)
	}
	return &Engine{deps: deps, logger: logger.With("component", "runtime")}
}

// Load makes a validated graph executable. Dry-run instances keep their
// state under a private key and record ledger traffic in memory.
func (e *Engine) Load(ctx context.Context, policy *core.PolicyConfig, g *graph.Graph, dryRun bool) (string, error) {
	if err := executable(policy, g); err != nil {
		return "", err
	}

	handle := uuid.New().String()
	key := policy.ID
	if dryRun {
		key = "dry-run:" + handle
	}
	instCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inst := &instance{
		handle:   handle,
		key:      key,
		policy:   policy,
		graph:    g,
		links:    routing.FromLinks(g.Links()),
		dryRun:   dryRun,
		inflight: &inflight{},
		eventLog: e.deps.EventLog,
		ctx:      instCtx,
		cancel:   cancel,
	}
	e.wire(inst)

	e.instances.Store(handle, inst)
	e.observeLoaded()

	e.logger.Info("policy loaded",
		"handle", handle,
		"policy_id", policy.ID,
		"dry_run", dryRun,
		"blocks", g.Len(),
		"links", inst.links.Len(),
	)
	return handle, nil
}

func (e *Engine) wire(inst *instance) {
	inst.services = &blocks.Services{
		Schemas: e.deps.Schemas,
		Mint:    e.deps.Mint,
		Ledger:  e.deps.Ledger,
		Groups:  e.deps.Groups,
	}
	inst.roles = e.deps.Roles
	if inst.dryRun || inst.services.Mint == nil || inst.services.Ledger == nil {
		if inst.recorder == nil {
			inst.recorder = ledger.NewRecorder()
		}
		if !inst.dryRun {
			e.logger.Warn("ledger not configured, recording in memory", "policy_id", inst.policy.ID)
		}
	}
	if inst.dryRun {
		inst.services.Mint = inst.recorder
		inst.services.Ledger = inst.recorder
		inst.services.Groups, inst.roles = nil, nil
		if inst.sandbox == nil && e.deps.Issuer != nil {
			inst.sandbox = groups.NewManager(groups.NewMemoryStore(), e.deps.Issuer, e.logger)
		}
		if inst.sandbox != nil {
			inst.services.Groups = inst.sandbox
			inst.roles = inst.sandbox
		}
		inst.eventLog = e.deps.EventLog.WithLevel(slog.LevelInfo)
		return
	}
	if inst.services.Mint == nil {
		inst.services.Mint = inst.recorder
	}
	if inst.services.Ledger == nil {
		inst.services.Ledger = inst.recorder
	}
}

func executable(policy *core.PolicyConfig, g *graph.Graph) error {
	if policy == nil || g == nil || g.Root == "" {
		return fmt.Errorf("%w: empty graph", core.ErrInvalidPolicy)
	}
	for _, n := range g.Nodes() {
		if n.HasErrors() {
			return fmt.Errorf("%w: policy=%s block=%s", core.ErrInvalidPolicy, policy.ID, n.ID)
		}
	}
	return nil
}

// Replace swaps the graph of a loaded instance in place. In-flight markers
// and the state namespace carry over; short-lived state is cleared.
func (e *Engine) Replace(ctx context.Context, handle string, policy *core.PolicyConfig, g *graph.Graph) error {
	if err := executable(policy, g); err != nil {
		return err
	}
	old, err := e.lookup(handle)
	if err != nil {
		return err
	}
	next := &instance{
		handle:   handle,
		key:      old.key,
		policy:   policy,
		graph:    g,
		links:    routing.FromLinks(g.Links()),
		dryRun:   old.dryRun,
		recorder: old.recorder,
		sandbox:  old.sandbox,
		inflight: old.inflight,
		eventLog: e.deps.EventLog,
		ctx:      old.ctx,
		cancel:   old.cancel,
	}
	e.wire(next)
	e.instances.Store(handle, next)

	cleared, err := e.deps.Cache.ClearTier(ctx, next.key, blocks.TierShort)
	if err != nil {
		e.logger.Warn("short state not cleared", "handle", handle, "error", err)
	}
	e.logger.Info("policy replaced",
		"handle", handle,
		"policy_id", policy.ID,
		"blocks", g.Len(),
		"cleared", cleared,
	)
	return nil
}

func (e *Engine) Unload(ctx context.Context, handle string) error {
	val, ok := e.instances.LoadAndDelete(handle)
	if !ok {
		return fmt.Errorf("%w: handle=%s", core.ErrPolicyNotLoaded, handle)
	}
	inst := val.(*instance)
	inst.cancel()

	if inst.dryRun {
		if _, err := e.deps.Cache.Drop(ctx, inst.key); err != nil {
			e.logger.Warn("dry-run state not dropped", "handle", handle, "error", err)
		}
	}
	e.observeLoaded()

	e.logger.Info("policy unloaded",
		"handle", handle,
		"policy_id", inst.policy.ID,
	)
	return nil
}

func (e *Engine) UnloadAll(ctx context.Context) {
	e.instances.Range(func(key, _ any) bool {
		_ = e.Unload(ctx, key.(string))
		return true
	})
}

func (e *Engine) ActiveCount() int {
	count := 0
	e.instances.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// InstanceByPolicy returns the handle of the live (non dry-run) instance
// of policyID.
func (e *Engine) InstanceByPolicy(policyID string) (string, bool) {
	var found string
	e.instances.Range(func(_, val any) bool {
		inst := val.(*instance)
		if !inst.dryRun && inst.policy.ID == policyID {
			found = inst.handle
			return false
		}
		return true
	})
	return found, found != ""
}

// Recorder returns the in-memory ledger of a dry-run instance.
func (e *Engine) Recorder(handle string) (*ledger.Recorder, bool) {
	inst, err := e.lookup(handle)
	if err != nil || inst.recorder == nil {
		return nil, false
	}
	return inst.recorder, true
}

// Wait blocks until every background task has finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

func (e *Engine) lookup(handle string) (*instance, error) {
	val, ok := e.instances.Load(handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle=%s", core.ErrPolicyNotLoaded, handle)
	}
	return val.(*instance), nil
}

func (e *Engine) resolve(inst *instance, blockID string) (*graph.Node, blocks.Behavior, error) {
	n, ok := inst.graph.Node(blockID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: policy=%s block=%s", core.ErrBlockNotFound, inst.policy.ID, blockID)
	}
	b, err := e.deps.Registry.MustLookup(n.Type)
	if err != nil {
		return nil, nil, &core.BlockError{BlockID: n.ID, BlockType: n.Type, Err: err}
	}
	return n, b, nil
}

func (e *Engine) observeLoaded() {
	if e.deps.Observer != nil {
		e.deps.Observer.PoliciesLoaded(e.ActiveCount())
	}
}
