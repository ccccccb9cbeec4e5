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

// Package routing holds the event link table of a loaded policy.
package routing

import (
	"sync"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type routeKey struct {
	source string
	output core.EventType
}

// Table maps a (source block, output event) pair to its links in
// declaration order. Readers never lock; writers replace whole slices.
type Table struct {
	mu    sync.Mutex
	links sync.Map
}

func NewTable() *Table {
	return &Table{}
}

// FromLinks builds a table from a graph's link list.
func FromLinks(links []graph.Link) *Table {
	t := NewTable()
	for _, l := range links {
		t.Add(l)
	}
	return t
}

func (t *Table) Add(l graph.Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := routeKey{l.Source, l.Output}
	var next []graph.Link
	if v, ok := t.links.Load(key); ok {
		cur := v.([]graph.Link)
		next = make([]graph.Link, len(cur), len(cur)+1)
		copy(next, cur)
	}
	t.links.Store(key, append(next, l))
}

// Remove drops every link leaving source.
func (t *Table) Remove(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links.Range(func(key, _ any) bool {
		if key.(routeKey).source == source {
			t.links.Delete(key)
		}
		return true
	})
}

func (t *Table) Lookup(source string, output core.EventType) []graph.Link {
	v, ok := t.links.Load(routeKey{source, output})
	if !ok {
		return nil
	}
	return v.([]graph.Link)
}

func (t *Table) ReplaceAll(links []graph.Link) {
	t.mu.Lock()
	t.links.Range(func(key, _ any) bool {
		t.links.Delete(key)
		return true
	})
	t.mu.Unlock()
	for _, l := range links {
		t.Add(l)
	}
}

// Len returns the number of links.
func (t *Table) Len() int {
	n := 0
	t.links.Range(func(_, v any) bool {
		n += len(v.([]graph.Link))
		return true
	})
	return n
}
