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

import "sync"

type marker struct {
	block string
	user  string
}

// inflight holds one marker per (block, user) pair with a running call.
type inflight struct {
	markers sync.Map
}

// acquire sets the marker for (blockID, userKey). It fails when the marker
// is already set; release must run on every exit path.
func (f *inflight) acquire(blockID, userKey string) (release func(), ok bool) {
	k := marker{block: blockID, user: userKey}
	if _, loaded := f.markers.LoadOrStore(k, struct{}{}); loaded {
		return nil, false
	}
	return func() { f.markers.Delete(k) }, true
}

func (f *inflight) active() int {
	n := 0
	f.markers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
