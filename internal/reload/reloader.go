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

// Package reload keeps loaded policy instances in step with the policy
// directory.
package reload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/policy-engine/internal/runtime"
	"github.com/wso2/api-platform/policy-engine/internal/validator"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// ValidationObserver records validation outcomes.
type ValidationObserver interface {
	ObserveValidation(res *core.ValidationResult)
}

// Reloader implements config.Handler. A changed file is revalidated and
// loaded or replaced when valid. An invalid revision leaves the running
// instance untouched.
type Reloader struct {
	validator *validator.Validator
	engine    *runtime.Engine
	observer  ValidationObserver
	dryRun    bool
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[string]string
}

func NewReloader(v *validator.Validator, engine *runtime.Engine, observer ValidationObserver, dryRun bool, logger *slog.Logger) *Reloader {
	return &Reloader{
		validator: v,
		engine:    engine,
		observer:  observer,
		dryRun:    dryRun,
		logger:    logger.With("component", "reload"),
		handles:   make(map[string]string),
	}
}

func (r *Reloader) PolicyChanged(ctx context.Context, path string, p *core.PolicyConfig) {
	g, res := r.validator.Validate(ctx, p)
	if r.observer != nil {
		r.observer.ObserveValidation(res)
	}
	if !res.IsValid {
		r.logger.Warn("policy is not valid, keeping previous revision",
			"path", path,
			"policy_id", p.ID,
			"errors", len(res.Errors),
		)
		for _, d := range res.Errors {
			r.logger.Debug("validation error", "policy_id", p.ID, "block_id", d.BlockID, "message", d.Message)
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[path]; ok {
		if err := r.engine.Replace(ctx, handle, p, g); err != nil {
			r.logger.Error("policy replace failed", "path", path, "handle", handle, "error", err)
		}
		return
	}
	handle, err := r.engine.Load(ctx, p, g, r.dryRun)
	if err != nil {
		r.logger.Error("policy load failed", "path", path, "policy_id", p.ID, "error", err)
		return
	}
	r.handles[path] = handle
}

func (r *Reloader) PolicyRemoved(ctx context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.handles[path]
	if !ok {
		return
	}
	delete(r.handles, path)
	if err := r.engine.Unload(ctx, handle); err != nil {
		r.logger.Warn("policy unload failed", "path", path, "handle", handle, "error", err)
	}
}

// Handle returns the instance loaded from path.
func (r *Reloader) Handle(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[path]
	return h, ok
}
