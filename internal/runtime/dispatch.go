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
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/internal/state"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type task struct {
	name string
	node *graph.Node
	user core.User
	fn   func(context.Context, *blocks.Context)
}

type update struct {
	node *graph.Node
	user core.User
	data map[string]any
}

// dispatch is one engine call and the causal chain it starts. State writes
// are buffered in tx; tasks, updates and external events wait for commit.
// Every (block, user) the chain reaches stays marked until it ends.
type dispatch struct {
	e       *Engine
	inst    *instance
	cache   *state.Cache
	tx      *state.Tx
	held    map[marker]func()
	undo    []func(context.Context) error
	tasks   []task
	updates []update
	events  []core.ExternalEvent
}

func (e *Engine) begin(inst *instance) *dispatch {
	cache, tx := e.deps.Cache.Begin()
	return &dispatch{e: e, inst: inst, cache: cache, tx: tx, held: make(map[marker]func())}
}

// lock marks (n, user) for the rest of the chain. A marker already held
// by this chain is reused.
func (d *dispatch) lock(n *graph.Node, user core.User) error {
	k := marker{block: n.ID, user: user.Key()}
	if _, ok := d.held[k]; ok {
		return nil
	}
	release, ok := d.inst.inflight.acquire(k.block, k.user)
	if !ok {
		return blockError(n, fmt.Errorf("%w: block=%s user=%s", core.ErrAlreadyProcessing, k.block, k.user))
	}
	d.held[k] = release
	return nil
}

func (d *dispatch) unlock() {
	for k, release := range d.held {
		release()
		delete(d.held, k)
	}
}

// GetBlockData returns the current view of a block for user. It never
// writes state.
func (e *Engine) GetBlockData(ctx context.Context, handle, blockID string, user core.User) (map[string]any, error) {
	inst, err := e.lookup(handle)
	if err != nil {
		return nil, err
	}
	n, b, err := e.resolve(inst, blockID)
	if err != nil {
		return nil, err
	}
	getter, ok := b.(blocks.Getter)
	if !ok {
		return nil, blockError(n, core.ErrUnsupportedAction)
	}
	user = e.identify(ctx, inst, user)
	if !inst.isAvailable(n, user) {
		return nil, blockError(n, fmt.Errorf("%w: user=%s", core.ErrForbidden, user.Key()))
	}

	var data map[string]any
	_, err = call(func() (*blocks.Result, error) {
		var gerr error
		data, gerr = getter.GetData(ctx, e.blockContext(inst, e.deps.Cache, n, user, nil))
		return nil, gerr
	})
	if err != nil {
		return nil, blockError(n, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// SetBlockData applies payload to a block on behalf of user and runs the
// resulting causal chain. Either the whole chain commits or no state
// changes. A second call for the same (block, user) while one is running
// fails with core.ErrAlreadyProcessing.
func (e *Engine) SetBlockData(ctx context.Context, handle, blockID string, user core.User, payload map[string]any) (map[string]any, error) {
	start := time.Now()
	inst, err := e.lookup(handle)
	if err != nil {
		return nil, err
	}
	n, b, err := e.resolve(inst, blockID)
	if err != nil {
		return nil, err
	}
	setter, ok := b.(blocks.Setter)
	if !ok {
		return nil, e.observe(inst, n, start, blockError(n, core.ErrUnsupportedAction))
	}

	var res *blocks.Result
	err = e.exclusive(ctx, inst, n, &user, func(d *dispatch) error {
		var serr error
		res, serr = call(func() (*blocks.Result, error) {
			return setter.SetData(ctx, d.context(n, user), payload)
		})
		if serr != nil {
			return blockError(n, serr)
		}
		d.external(core.ExternalSet, n, user, payload)
		return d.emit(ctx, n, user, res, 0)
	})
	if err != nil {
		return nil, e.observe(inst, n, start, err)
	}
	e.observe(inst, n, start, nil)

	if res == nil || res.Data == nil {
		return map[string]any{}, nil
	}
	return res.Data, nil
}

// Dispatch delivers an input event to a block from outside the policy,
// as a timer or a restore request from the boundary would.
func (e *Engine) Dispatch(ctx context.Context, handle, blockID string, user core.User, input core.EventType, data map[string]any) error {
	start := time.Now()
	inst, err := e.lookup(handle)
	if err != nil {
		return err
	}
	n, _, err := e.resolve(inst, blockID)
	if err != nil {
		return err
	}
	err = e.exclusive(ctx, inst, n, &user, func(d *dispatch) error {
		return d.deliver(ctx, graph.Link{Target: n.ID, Output: input, Input: input}, user, data, 0)
	})
	return e.observe(inst, n, start, err)
}

// exclusive runs fn inside a state transaction, holding the in-flight
// marker of (n, user) and of every pair the chain reaches.
func (e *Engine) exclusive(ctx context.Context, inst *instance, n *graph.Node, user *core.User, fn func(d *dispatch) error) error {
	*user = e.identify(ctx, inst, *user)
	if !inst.isAvailable(n, *user) {
		return blockError(n, fmt.Errorf("%w: user=%s", core.ErrForbidden, user.Key()))
	}
	d := e.begin(inst)
	defer d.unlock()
	if err := d.lock(n, *user); err != nil {
		return err
	}
	if err := fn(d); err != nil {
		d.rollback(ctx)
		return err
	}
	return d.commit(ctx)
}

func (d *dispatch) context(n *graph.Node, user core.User) *blocks.Context {
	return d.e.blockContext(d.inst, d.cache, n, user, d)
}

// emit follows the links of every output in res, depth first.
func (d *dispatch) emit(ctx context.Context, src *graph.Node, user core.User, res *blocks.Result, depth int) error {
	if res == nil {
		return nil
	}
	if res.Update {
		d.updates = append(d.updates, update{node: src, user: user})
	}
	for _, out := range res.Outputs {
		for _, l := range d.inst.links.Lookup(src.ID, out.Type) {
			if err := d.deliver(ctx, l, user, out.Data, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *dispatch) deliver(ctx context.Context, l graph.Link, initiator core.User, data map[string]any, depth int) error {
	tgt, ok := d.inst.graph.Node(l.Target)
	if !ok {
		return fmt.Errorf("%w: policy=%s block=%s", core.ErrBlockNotFound, d.inst.policy.ID, l.Target)
	}
	if depth > d.e.deps.MaxDepth {
		return blockError(tgt, fmt.Errorf("%w: depth=%d", core.ErrPropagationLimit, depth))
	}
	user := d.actor(ctx, l.Actor, initiator, data)
	evt := core.Event{
		ID:        uuid.New().String(),
		PolicyID:  d.inst.policy.ID,
		Source:    l.Source,
		Target:    tgt.ID,
		Output:    l.Output,
		Input:     l.Input,
		User:      user,
		Data:      data,
		DryRun:    d.inst.dryRun,
		Timestamp: time.Now().UTC(),
	}
	d.inst.eventLog.Log(evt, tgt.Type)

	if err := d.lock(tgt, user); err != nil {
		return err
	}
	if err := d.track(ctx, tgt, user, depth); err != nil {
		return err
	}

	if l.Input == core.EventRestore {
		if err := d.context(tgt, user).State.Clear(ctx, blocks.TierShort); err != nil {
			return blockError(tgt, err)
		}
		d.updates = append(d.updates, update{node: tgt, user: user})
		return nil
	}

	b, err := d.e.deps.Registry.MustLookup(tgt.Type)
	if err != nil {
		return blockError(tgt, err)
	}
	runner, ok := b.(blocks.Runner)
	if !ok {
		d.e.logger.Debug("event ignored by block without actions", "block_id", tgt.ID, "input", l.Input)
		return nil
	}
	res, err := call(func() (*blocks.Result, error) {
		return runner.RunAction(ctx, d.context(tgt, user), evt)
	})
	if err != nil {
		return d.fail(ctx, tgt, user, err, depth)
	}
	d.external(core.ExternalRun, tgt, user, data)
	return d.emit(ctx, tgt, user, res, depth)
}

// track tells a tracking parent that one of its children was activated.
func (d *dispatch) track(ctx context.Context, n *graph.Node, user core.User, depth int) error {
	parent, ok := d.inst.graph.Parent(n.ID)
	if !ok {
		return nil
	}
	b, ok := d.e.deps.Registry.Lookup(parent.Type)
	if !ok {
		return nil
	}
	tracker, ok := b.(blocks.ChildTracker)
	if !ok {
		return nil
	}
	if err := d.lock(parent, user); err != nil {
		return err
	}
	res, err := call(func() (*blocks.Result, error) {
		return tracker.ChildActivated(ctx, d.context(parent, user), n)
	})
	if err != nil {
		return blockError(parent, err)
	}
	return d.emit(ctx, parent, user, res, depth)
}

// fail raises ErrorEvent when the failing block has error links, and
// aborts the chain otherwise.
func (d *dispatch) fail(ctx context.Context, n *graph.Node, user core.User, err error, depth int) error {
	if errors.Is(err, core.ErrPropagationLimit) || len(d.inst.links.Lookup(n.ID, core.EventError)) == 0 {
		return blockError(n, err)
	}
	d.e.logger.Warn("block failed, raising error event",
		"policy_id", d.inst.policy.ID,
		"block_id", n.ID,
		"error", err,
	)
	res := &blocks.Result{}
	res.Emit(core.EventError, map[string]any{"blockId": n.ID, "error": err.Error()})
	return d.emit(ctx, n, user, res, depth)
}

// actor picks the user an event is delivered as.
func (d *dispatch) actor(ctx context.Context, actor core.EventActor, initiator core.User, data map[string]any) core.User {
	switch actor {
	case core.ActorOwner:
		docs := blocks.DocumentsOf(data)
		if len(docs) > 0 && docs[0].Owner != "" && docs[0].Owner != initiator.DID {
			return d.e.identify(ctx, d.inst, core.User{DID: docs[0].Owner, Group: docs[0].Group, Account: docs[0].Account})
		}
	case core.ActorIssuer:
		if owner := d.inst.policy.Owner; owner != "" && owner != initiator.DID {
			return d.e.identify(ctx, d.inst, core.User{DID: owner})
		}
	}
	return initiator
}

func (d *dispatch) external(typ string, n *graph.Node, user core.User, data map[string]any) {
	if d.inst.dryRun || d.e.deps.Publisher == nil {
		return
	}
	d.events = append(d.events, core.ExternalEvent{
		Type:      typ,
		PolicyID:  d.inst.policy.ID,
		BlockID:   n.ID,
		BlockType: n.Type,
		UserDID:   user.DID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// rollback drops buffered state and undoes side effects blocks
// registered, latest first.
func (d *dispatch) rollback(ctx context.Context) {
	d.tx.Discard()
	ctx = context.WithoutCancel(ctx)
	for i := len(d.undo) - 1; i >= 0; i-- {
		if err := d.undo[i](ctx); err != nil {
			d.e.logger.Error("rollback step failed",
				"policy_id", d.inst.policy.ID,
				"error", err,
			)
		}
	}
	d.undo = nil
}

func (d *dispatch) commit(ctx context.Context) error {
	if err := d.tx.Commit(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("commit state: %w", err)
	}
	for _, t := range d.tasks {
		d.e.spawn(d.inst, t)
	}
	for _, u := range d.updates {
		d.e.notify(d.inst, u.node, u.user, u.data)
	}
	for _, evt := range d.events {
		if err := d.e.deps.Publisher.Publish(ctx, evt); err != nil {
			d.e.logger.Warn("external event not published",
				"policy_id", evt.PolicyID,
				"block_id", evt.BlockID,
				"type", evt.Type,
				"error", err,
			)
		}
	}
	return nil
}

// blockContext builds the environment of one block call. With a dispatch,
// background work and notifications wait for its commit.
func (e *Engine) blockContext(inst *instance, cache *state.Cache, n *graph.Node, user core.User, d *dispatch) *blocks.Context {
	bc := &blocks.Context{
		PolicyKey: inst.key,
		Policy:    inst.policy,
		Graph:     inst.graph,
		Node:      n,
		User:      user,
		DryRun:    inst.dryRun,
		State:     cache.Scope(inst.key, n.ID, user.Key()),
		Documents: cache.Documents(inst.key),
		Services:  inst.services,
		Logger:    e.logger.With("policy_id", inst.policy.ID, "block_id", n.ID),
		StateOf: func(id string) blocks.State {
			return cache.Scope(inst.key, id, user.Key())
		},
		Visible: func(c *graph.Node) bool {
			return inst.isAvailable(c, user)
		},
	}
	if d != nil {
		bc.Background = func(name string, fn func(context.Context, *blocks.Context)) {
			d.tasks = append(d.tasks, task{name: name, node: n, user: user, fn: fn})
		}
		bc.Notify = func(data map[string]any) {
			d.updates = append(d.updates, update{node: n, user: user, data: data})
		}
		bc.OnRollback = func(fn func(context.Context) error) {
			d.undo = append(d.undo, fn)
		}
		return bc
	}
	bc.Background = func(name string, fn func(context.Context, *blocks.Context)) {
		e.spawn(inst, task{name: name, node: n, user: user, fn: fn})
	}
	bc.Notify = func(data map[string]any) {
		e.notify(inst, n, user, data)
	}
	return bc
}

func (e *Engine) spawn(inst *instance, t task) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("background task panic recovered",
					"policy_id", inst.policy.ID,
					"block_id", t.node.ID,
					"task", t.name,
					"error", r,
				)
			}
		}()
		t.fn(inst.ctx, e.blockContext(inst, e.deps.Cache, t.node, t.user, nil))
	}()
}

func (e *Engine) notify(inst *instance, n *graph.Node, user core.User, data map[string]any) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.BlockUpdated(inst.policy.ID, n.ID, user.DID, data)
}

func (e *Engine) observe(inst *instance, n *graph.Node, start time.Time, err error) error {
	result := "ok"
	if err != nil {
		result = string(core.Classify(err))
		e.logger.Warn("dispatch failed",
			"policy_id", inst.policy.ID,
			"block_id", n.ID,
			"class", result,
			"error", err,
		)
	}
	if e.deps.Observer != nil {
		e.deps.Observer.DispatchObserved(n.Type, result, time.Since(start))
	}
	return err
}

// call runs a block hook and turns a panic into an error.
func call(fn func() (*blocks.Result, error)) (res *blocks.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("block panic: %v", r)
		}
	}()
	return fn()
}

// blockError attributes err to n unless a block already claimed it.
func blockError(n *graph.Node, err error) error {
	var be *core.BlockError
	if errors.As(err, &be) {
		return err
	}
	return &core.BlockError{BlockID: n.ID, BlockType: n.Type, Err: err}
}
