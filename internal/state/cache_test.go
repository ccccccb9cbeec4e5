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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func TestScopeTiers(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore(), time.Hour, 0)
	s := cache.Scope("p1", "block-1", "did:user:1")

	require.NoError(t, s.Set(ctx, blocks.TierShort, "index", 3))
	require.NoError(t, s.Set(ctx, blocks.TierLong, "report", map[string]any{"status": "STARTED"}))

	var idx int
	found, err := s.Get(ctx, blocks.TierShort, "index", &idx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, idx)

	require.NoError(t, s.Clear(ctx, blocks.TierShort))
	found, err = s.Get(ctx, blocks.TierShort, "index", &idx)
	require.NoError(t, err)
	assert.False(t, found)

	var report map[string]any
	found, err = s.Get(ctx, blocks.TierLong, "report", &report)
	require.NoError(t, err)
	require.True(t, found, "clearing the short tier keeps the long tier")
	assert.Equal(t, "STARTED", report["status"])
}

func TestScopeIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore(), 0, 0)
	a := cache.Scope("p1", "b", "did:user")
	b := cache.Scope("p1", "b", "did:user:1")

	require.NoError(t, a.Set(ctx, blocks.TierShort, "v", "a"))
	require.NoError(t, b.Set(ctx, blocks.TierShort, "v", "b"))
	require.NoError(t, a.Clear(ctx, blocks.TierShort))

	var v string
	found, err := b.Get(ctx, blocks.TierShort, "v", &v)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", v)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore(), 0, 0)
	docs := cache.Documents("p1")
	other := cache.Documents("p2")

	require.NoError(t, docs.Save(ctx, &core.Document{ID: "b", Type: core.DocumentVC}))
	require.NoError(t, docs.Save(ctx, &core.Document{ID: "a", Type: core.DocumentVC, Data: map[string]any{"n": 1}}))
	require.NoError(t, other.Save(ctx, &core.Document{ID: "c"}))

	list, err := docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, float64(1), list[0].Data["n"])

	_, err = docs.Get(ctx, "c")
	require.ErrorIs(t, err, core.ErrStateNotFound)

	n, err := cache.Drop(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTxCommitAndDiscard(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	cache := NewCache(base, 0, 0)
	require.NoError(t, cache.Scope("p1", "b", "u").Set(ctx, blocks.TierShort, "old", 1))

	txCache, tx := cache.Begin()
	s := txCache.Scope("p1", "b", "u")
	require.NoError(t, s.Set(ctx, blocks.TierShort, "new", 2))
	require.NoError(t, s.Clear(ctx, blocks.TierShort))
	require.NoError(t, s.Set(ctx, blocks.TierShort, "after", 3))

	var v int
	found, _ := s.Get(ctx, blocks.TierShort, "old", &v)
	assert.False(t, found, "cleared inside the transaction")
	found, _ = cache.Scope("p1", "b", "u").Get(ctx, blocks.TierShort, "old", &v)
	assert.True(t, found, "base untouched before commit")

	require.NoError(t, tx.Commit(ctx))
	base1 := cache.Scope("p1", "b", "u")
	found, _ = base1.Get(ctx, blocks.TierShort, "old", &v)
	assert.False(t, found)
	found, _ = base1.Get(ctx, blocks.TierShort, "after", &v)
	assert.True(t, found)
	assert.Equal(t, 3, v)

	txCache, tx = cache.Begin()
	require.NoError(t, txCache.Scope("p1", "b", "u").Set(ctx, blocks.TierShort, "discarded", 1))
	assert.Equal(t, 1, tx.Pending())
	tx.Discard()
	require.NoError(t, tx.Commit(ctx))
	found, _ = base1.Get(ctx, blocks.TierShort, "discarded", &v)
	assert.False(t, found)
}

func TestTxScanMergesPending(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.Set(ctx, "p:1", []byte("a"), 0))
	require.NoError(t, base.Set(ctx, "p:2", []byte("b"), 0))

	tx := NewTx(base)
	require.NoError(t, tx.Delete(ctx, "p:1"))
	require.NoError(t, tx.Set(ctx, "p:3", []byte("c"), 0))

	got, err := tx.Scan(ctx, "p:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"p:2": []byte("b"), "p:3": []byte("c")}, got)
}
