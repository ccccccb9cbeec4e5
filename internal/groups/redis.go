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

package groups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// RedisStore implements core.GroupStore using Redis. Global group names
// and memberships are claimed with SETNX so concurrent joins agree.
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
		keyPrefix = "policy-engine:groups:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisStore) groupKey(id string) string { return r.keyPrefix + "group:" + id }
func (r *RedisStore) globalKey(policyID, name string) string {
	return r.keyPrefix + "global:" + policyID + ":" + name
}
func (r *RedisStore) memberKey(groupID, did string) string {
	return r.keyPrefix + "member:" + groupID + ":" + did
}
func (r *RedisStore) membersKey(groupID string) string {
	return r.keyPrefix + "members:" + groupID
}
func (r *RedisStore) userKey(policyID, did string) string {
	return r.keyPrefix + "memberships:" + policyID + ":" + did
}
func (r *RedisStore) invitationKey(id string) string { return r.keyPrefix + "invitation:" + id }

func (r *RedisStore) getJSON(ctx context.Context, key string, out any, missing error) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return missing
		}
		return err
	}
	return json.Unmarshal(data, out)
}

func (r *RedisStore) FindOrCreateGlobal(ctx context.Context, g *core.Group) (*core.Group, bool, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, false, err
	}
	if err := r.client.Set(ctx, r.groupKey(g.ID), data, 0).Err(); err != nil {
		return nil, false, err
	}
	won, err := r.client.SetNX(ctx, r.globalKey(g.PolicyID, g.Name), g.ID, 0).Result()
	if err != nil {
		return nil, false, err
	}
	if won {
		return g, true, nil
	}

	r.client.Del(ctx, r.groupKey(g.ID))
	id, err := r.client.Get(ctx, r.globalKey(g.PolicyID, g.Name)).Result()
	if err != nil {
		return nil, false, err
	}
	found, err := r.GetGroup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return found, false, nil
}

func (r *RedisStore) CreateGroup(ctx context.Context, g *core.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.groupKey(g.ID), data, 0).Err()
}

func (r *RedisStore) GetGroup(ctx context.Context, id string) (*core.Group, error) {
	var g core.Group
	if err := r.getJSON(ctx, r.groupKey(id), &g, fmt.Errorf("%w: id=%s", core.ErrGroupNotFound, id)); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *RedisStore) AddMember(ctx context.Context, m *core.Membership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	added, err := r.client.SetNX(ctx, r.memberKey(m.GroupID, m.UserDID), data, 0).Result()
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: group=%s", core.ErrAlreadyMember, m.GroupName)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.userKey(m.PolicyID, m.UserDID), m.GroupID)
		pipe.SAdd(ctx, r.membersKey(m.GroupID), m.UserDID)
		return nil
	})
	return err
}

func (r *RedisStore) RemoveMember(ctx context.Context, groupID, userDID string) error {
	m, err := r.Member(ctx, groupID, userDID)
	if errors.Is(err, core.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.memberKey(groupID, userDID))
		pipe.LRem(ctx, r.userKey(m.PolicyID, userDID), 0, groupID)
		pipe.SRem(ctx, r.membersKey(groupID), userDID)
		return nil
	})
	return err
}

const releaseRetries = 3

// ReleaseGroup watches the member set so a concurrent join keeps the group.
func (r *RedisStore) ReleaseGroup(ctx context.Context, g *core.Group) (bool, error) {
	members := r.membersKey(g.ID)
	global := r.globalKey(g.PolicyID, g.Name)
	for i := 0; i < releaseRetries; i++ {
		released := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.SCard(ctx, members).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			claim, err := tx.Get(ctx, global).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, r.groupKey(g.ID))
				if claim == g.ID {
					pipe.Del(ctx, global)
				}
				return nil
			})
			if err == nil {
				released = true
			}
			return err
		}, members, global)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return released, err
	}
	return false, fmt.Errorf("release group %s: %w", g.ID, redis.TxFailedErr)
}

func (r *RedisStore) Member(ctx context.Context, groupID, userDID string) (*core.Membership, error) {
	var m core.Membership
	missing := fmt.Errorf("%w: group=%s user=%s", core.ErrStateNotFound, groupID, userDID)
	if err := r.getJSON(ctx, r.memberKey(groupID, userDID), &m, missing); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *RedisStore) Memberships(ctx context.Context, policyID, userDID string) ([]*core.Membership, error) {
	ids, err := r.client.LRange(ctx, r.userKey(policyID, userDID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*core.Membership, 0, len(ids))
	for _, id := range ids {
		m, err := r.Member(ctx, id, userDID)
		if err != nil {
			continue // Membership removed out of band
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *RedisStore) SaveInvitation(ctx context.Context, inv *core.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.invitationKey(inv.ID), data, 0).Err()
}

func (r *RedisStore) GetInvitation(ctx context.Context, id string) (*core.Invitation, error) {
	var inv core.Invitation
	if err := r.getJSON(ctx, r.invitationKey(id), &inv, fmt.Errorf("%w: invitation=%s", core.ErrStateNotFound, id)); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
