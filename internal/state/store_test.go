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
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

// exerciseStore runs the behaviour shared by every backend.
func exerciseStore(t *testing.T, store core.StateStore) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrStateNotFound)

	require.NoError(t, store.Set(ctx, "a:1", []byte("one"), 0))
	require.NoError(t, store.Set(ctx, "a:2", []byte("two"), 0))
	require.NoError(t, store.Set(ctx, "b:[x]", []byte("three"), 0))

	got, err := store.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	scanned, err := store.Scan(ctx, "a:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a:1": []byte("one"), "a:2": []byte("two")}, scanned)

	scanned, err = store.Scan(ctx, "b:[")
	require.NoError(t, err)
	assert.Len(t, scanned, 1, "glob characters in the prefix are literal")

	n, err := store.DeletePrefix(ctx, "a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = store.Get(ctx, "a:2")
	require.ErrorIs(t, err, core.ErrStateNotFound)

	require.NoError(t, store.Delete(ctx, "b:[x]"))
	_, err = store.Get(ctx, "b:[x]")
	require.ErrorIs(t, err, core.ErrStateNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func exerciseBatch(t *testing.T, store core.StateStore) {
	ctx := context.Background()
	b, ok := store.(Batcher)
	require.True(t, ok)

	require.NoError(t, store.Set(ctx, "x:old", []byte("0"), 0))
	require.NoError(t, b.Apply(ctx, []Op{
		{Kind: OpSet, Key: "x:1", Value: []byte("1")},
		{Kind: OpSet, Key: "y:1", Value: []byte("y"), TTL: time.Minute},
		{Kind: OpDeletePrefix, Key: "x:"},
		{Kind: OpSet, Key: "x:2", Value: []byte("2")},
		{Kind: OpDelete, Key: "y:missing"},
	}))

	got, err := store.Scan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"x:2": []byte("2"), "y:1": []byte("y")}, got)
}

func TestMemoryStoreApply(t *testing.T) {
	exerciseBatch(t, NewMemoryStore())
}

func TestRedisStoreApply(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseBatch(t, store)
}

func TestRedisStoreApplyFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	mr.SetError("ERR injected failure")
	err := store.Apply(ctx, []Op{
		{Kind: OpSet, Key: "a", Value: []byte("1")},
		{Kind: OpSet, Key: "b", Value: []byte("2")},
	})
	require.Error(t, err)
	mr.SetError("")

	got, err := store.Scan(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// setFailsStore rejects single-key writes, so only a batched commit can
// land anything.
type setFailsStore struct {
	*MemoryStore
}

func (setFailsStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("single writes are disabled")
}

func TestTxCommitUsesBatch(t *testing.T) {
	ctx := context.Background()
	base := setFailsStore{NewMemoryStore()}
	tx := NewTx(base)
	require.NoError(t, tx.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, tx.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, tx.Commit(ctx))
	got, err := base.Scan(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "keep", []byte("v"), 0))

	n, err := store.Sweep(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, core.ErrStateNotFound)
	_, err = store.Get(ctx, "keep")
	require.NoError(t, err)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, core.ErrStateNotFound)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	_, err := store.Get(context.Background(), "k")
	require.ErrorIs(t, err, core.ErrStoreClosed)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(Config{Type: "etcd"})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	store, err = NewStore(Config{Type: StoreTypeRedis, Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	store.Close()
}

func TestCleanupWorkerSweeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Millisecond))

	w := NewCleanupWorker(store, 5*time.Millisecond, testLogger())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.entries) == 0
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	<-done
}
