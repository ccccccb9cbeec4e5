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
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// RedisStore implements core.StateStore using Redis. Expiry is left to
// Redis key TTLs.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "policy-engine:state:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

func (r *RedisStore) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrStateNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var cursor uint64
	pattern := globEscape(r.key(prefix)) + "*"

	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		out = append(out, keys...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	return int(n), err
}

func (r *RedisStore) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		data, err := r.client.Get(ctx, k).Bytes()
		if err != nil {
			continue // Key might have expired between SCAN and GET
		}
		out[strings.TrimPrefix(k, r.keyPrefix)] = data
	}
	return out, nil
}

// Apply runs ops in one MULTI/EXEC. Prefix deletes resolve their keys
// before the transaction and include keys set earlier in the batch.
func (r *RedisStore) Apply(ctx context.Context, ops []Op) error {
	prefixed := make(map[int][]string)
	for i, o := range ops {
		if o.Kind != OpDeletePrefix {
			continue
		}
		keys, err := r.keys(ctx, o.Key)
		if err != nil {
			return err
		}
		for _, earlier := range ops[:i] {
			if earlier.Kind == OpSet && strings.HasPrefix(earlier.Key, o.Key) {
				keys = append(keys, r.key(earlier.Key))
			}
		}
		prefixed[i] = keys
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, o := range ops {
			switch o.Kind {
			case OpSet:
				pipe.Set(ctx, r.key(o.Key), o.Value, o.TTL)
			case OpDelete:
				pipe.Del(ctx, r.key(o.Key))
			case OpDeletePrefix:
				if keys := prefixed[i]; len(keys) > 0 {
					pipe.Del(ctx, keys...)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis expires keys itself.
func (r *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
