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

package validator

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// ValidateAll validates independent policies concurrently. Results are in
// input order; it fails only when ctx is cancelled.
func (v *Validator) ValidateAll(ctx context.Context, policies []*core.PolicyConfig) ([]*core.ValidationResult, error) {
	results := make([]*core.ValidationResult, len(policies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range policies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, results[i] = v.Validate(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
