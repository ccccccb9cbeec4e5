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

// Package state is the per-user state cache of loaded policies. Entries
// are partitioned by policy instance, tier, block, and user.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const (
	tierShort = "short"
	tierLong  = "long"
)

func tierName(t blocks.Tier) string {
	if t == blocks.TierLong {
		return tierLong
	}
	return tierShort
}

// Cache maps block state and documents onto a StateStore.
type Cache struct {
	store    core.StateStore
	shortTTL time.Duration
	longTTL  time.Duration
}

// NewCache wraps store. A zero TTL keeps entries until they are cleared.
func NewCache(store core.StateStore, shortTTL, longTTL time.Duration) *Cache {
	return &Cache{store: store, shortTTL: shortTTL, longTTL: longTTL}
}

func (c *Cache) Store() core.StateStore { return c.store }

// Begin returns a cache whose writes are buffered in tx until committed.
func (c *Cache) Begin() (*Cache, *Tx) {
	tx := NewTx(c.store)
	return &Cache{store: tx, shortTTL: c.shortTTL, longTTL: c.longTTL}, tx
}

func policyPrefix(policyKey string) string {
	return "policy:" + policyKey + ":"
}

// Key builds the cache key policy:<key>:<tier>:<block>:<user>:<name>.
func Key(policyKey string, tier blocks.Tier, blockID, userKey, name string) string {
	return scopePrefix(policyKey, tier, blockID, userKey) + name
}

// scopePrefix escapes the block and user segments so a DID containing
// colons cannot prefix-match another user's keys.
func scopePrefix(policyKey string, tier blocks.Tier, blockID, userKey string) string {
	return fmt.Sprintf("%s%s:%s:%s:", policyPrefix(policyKey), tierName(tier), url.QueryEscape(blockID), url.QueryEscape(userKey))
}

func (c *Cache) ttl(tier blocks.Tier) time.Duration {
	if tier == blocks.TierLong {
		return c.longTTL
	}
	return c.shortTTL
}

// Scope returns the state of one block for one user.
func (c *Cache) Scope(policyKey, blockID, userKey string) *Scope {
	return &Scope{cache: c, policyKey: policyKey, blockID: blockID, userKey: userKey}
}

// ClearTier removes one tier of every block and user of a policy instance.
func (c *Cache) ClearTier(ctx context.Context, policyKey string, tier blocks.Tier) (int, error) {
	return c.store.DeletePrefix(ctx, policyPrefix(policyKey)+tierName(tier)+":")
}

// Drop removes everything stored for a policy instance, documents included.
func (c *Cache) Drop(ctx context.Context, policyKey string) (int, error) {
	return c.store.DeletePrefix(ctx, policyPrefix(policyKey))
}

// Scope implements blocks.State for a (block, user) pair.
type Scope struct {
	cache     *Cache
	policyKey string
	blockID   string
	userKey   string
}

func (s *Scope) Get(ctx context.Context, tier blocks.Tier, name string, out any) (bool, error) {
	raw, err := s.cache.store.Get(ctx, Key(s.policyKey, tier, s.blockID, s.userKey, name))
	if err != nil {
		if errors.Is(err, core.ErrStateNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode state %s: %w", name, err)
	}
	return true, nil
}

func (s *Scope) Set(ctx context.Context, tier blocks.Tier, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", name, err)
	}
	return s.cache.store.Set(ctx, Key(s.policyKey, tier, s.blockID, s.userKey, name), raw, s.cache.ttl(tier))
}

func (s *Scope) Clear(ctx context.Context, tier blocks.Tier) error {
	_, err := s.cache.store.DeletePrefix(ctx, scopePrefix(s.policyKey, tier, s.blockID, s.userKey))
	return err
}

// Documents returns the document table of a policy instance.
func (c *Cache) Documents(policyKey string) *Documents {
	return &Documents{cache: c, prefix: policyPrefix(policyKey) + "doc:"}
}

// Documents implements blocks.Documents. Documents never expire.
type Documents struct {
	cache  *Cache
	prefix string
}

func (d *Documents) Save(ctx context.Context, doc *core.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return d.cache.store.Set(ctx, d.prefix+doc.ID, raw, 0)
}

func (d *Documents) Get(ctx context.Context, id string) (*core.Document, error) {
	raw, err := d.cache.store.Get(ctx, d.prefix+id)
	if err != nil {
		if errors.Is(err, core.ErrStateNotFound) {
			return nil, fmt.Errorf("%w: document=%s", core.ErrStateNotFound, id)
		}
		return nil, err
	}
	var doc core.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// List returns every document ordered by id.
func (d *Documents) List(ctx context.Context) ([]*core.Document, error) {
	raw, err := d.cache.store.Scan(ctx, d.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*core.Document, 0, len(keys))
	for _, k := range keys {
		var doc core.Document
		if err := json.Unmarshal(raw[k], &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", strings.TrimPrefix(k, d.prefix), err)
		}
		out = append(out, &doc)
	}
	return out, nil
}
