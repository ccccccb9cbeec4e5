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

package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
	OpDeletePrefix
)

// Op is one buffered write. For OpDeletePrefix, Key is the prefix.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
	TTL   time.Duration
}

// Batcher is implemented by stores that apply a sequence of writes
// atomically. Either every op lands or none does.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}

// Tx buffers writes over a base store. Reads see the buffered writes;
// nothing reaches the base store until Commit.
type Tx struct {
	base core.StateStore
	mu   sync.Mutex
	ops  []Op
}

func NewTx(base core.StateStore) *Tx {
	return &Tx{base: base}
}

// lookup reports the buffered outcome for key: a value, a tombstone, or
// no opinion.
func (t *Tx) lookup(key string) (value []byte, deleted, hit bool) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		o := t.ops[i]
		switch o.Kind {
		case OpSet:
			if o.Key == key {
				return o.Value, false, true
			}
		case OpDelete:
			if o.Key == key {
				return nil, true, true
			}
		case OpDeletePrefix:
			if strings.HasPrefix(key, o.Key) {
				return nil, true, true
			}
		}
	}
	return nil, false, false
}

func (t *Tx) Get(ctx context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	value, deleted, hit := t.lookup(key)
	t.mu.Unlock()
	if hit {
		if deleted {
			return nil, core.ErrStateNotFound
		}
		return value, nil
	}
	return t.base.Get(ctx, key)
}

func (t *Tx) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.mu.Lock()
	t.ops = append(t.ops, Op{Kind: OpSet, Key: key, Value: value, TTL: ttl})
	t.mu.Unlock()
	return nil
}

func (t *Tx) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	t.ops = append(t.ops, Op{Kind: OpDelete, Key: key})
	t.mu.Unlock()
	return nil
}

// DeletePrefix reports the number of matching keys visible at call time.
func (t *Tx) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	visible, err := t.Scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.ops = append(t.ops, Op{Kind: OpDeletePrefix, Key: prefix})
	t.mu.Unlock()
	return len(visible), nil
}

func (t *Tx) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	out, err := t.base.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.ops {
		switch o.Kind {
		case OpSet:
			if strings.HasPrefix(o.Key, prefix) {
				out[o.Key] = o.Value
			}
		case OpDelete:
			delete(out, o.Key)
		case OpDeletePrefix:
			for k := range out {
				if strings.HasPrefix(k, o.Key) {
					delete(out, k)
				}
			}
		}
	}
	return out, nil
}

func (t *Tx) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Close discards buffered writes without touching the base store.
func (t *Tx) Close() error {
	t.Discard()
	return nil
}

// Pending returns the number of buffered writes.
func (t *Tx) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Commit applies buffered writes to the base store in order, as one
// batch when the base store is a Batcher. Otherwise writes already
// applied stay applied if a later one fails.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	if b, ok := t.base.(Batcher); ok {
		return b.Apply(ctx, ops)
	}

	var errs []error
	for _, o := range ops {
		var err error
		switch o.Kind {
		case OpSet:
			err = t.base.Set(ctx, o.Key, o.Value, o.TTL)
		case OpDelete:
			err = t.base.Delete(ctx, o.Key)
		case OpDeletePrefix:
			_, err = t.base.DeletePrefix(ctx, o.Key)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tx) Discard() {
	t.mu.Lock()
	t.ops = nil
	t.mu.Unlock()
}
