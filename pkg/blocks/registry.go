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

package blocks

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Registry is the block definition registry. It is filled at startup and
// read concurrently afterwards.
type Registry struct {
	behaviors map[string]Behavior
	logger    *slog.Logger
	mu        sync.RWMutex
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		behaviors: make(map[string]Behavior),
		logger:    logger,
	}
}

func (r *Registry) Register(b Behavior) {
	r.mu.Lock()
	r.behaviors[b.Type()] = b
	r.mu.Unlock()
	about := b.About()
	r.logger.Debug("registered block", "type", b.Type(), "control", about.Control, "children", about.Children)
}

func (r *Registry) Lookup(blockType string) (Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.behaviors[blockType]
	return b, ok
}

// MustLookup is Lookup for callers holding a validated graph.
func (r *Registry) MustLookup(blockType string) (Behavior, error) {
	b, ok := r.Lookup(blockType)
	if !ok {
		return nil, fmt.Errorf("%w: type=%s", core.ErrUnknownBlockType, blockType)
	}
	return b, nil
}

func (r *Registry) About(blockType string) (About, bool) {
	b, ok := r.Lookup(blockType)
	if !ok {
		return About{}, false
	}
	return b.About(), true
}

// Types returns the registered block types in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.behaviors))
	for t := range r.behaviors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Events resolves the input and output events of a configured block.
func (r *Registry) Events(cfg *core.BlockConfig) (inputs, outputs []core.EventType) {
	b, ok := r.Lookup(cfg.BlockType)
	if !ok {
		return nil, nil
	}
	about := b.About()
	inputs = append(inputs, about.Input...)
	outputs = append(outputs, about.Output...)
	if d, ok := b.(EventDeclarer); ok {
		in, out := d.Events(cfg)
		inputs = appendUnique(inputs, in...)
		outputs = appendUnique(outputs, out...)
	}
	return inputs, outputs
}

func appendUnique(dst []core.EventType, src ...core.EventType) []core.EventType {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
