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

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const policyPattern = "*.{yaml,yml,json}"

// Handler receives policy file changes.
type Handler interface {
	PolicyChanged(ctx context.Context, path string, p *core.PolicyConfig)
	PolicyRemoved(ctx context.Context, path string)
}

// Watcher polls a policy directory and reports new, modified and removed
// policy files.
type Watcher struct {
	dir      string
	handler  Handler
	interval time.Duration
	logger   *slog.Logger
	seen     map[string]time.Time
}

func NewWatcher(dir string, interval time.Duration, handler Handler, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		dir:      dir,
		handler:  handler,
		interval: interval,
		logger:   logger.With("component", "policy-watcher"),
		seen:     make(map[string]time.Time),
	}
}

// Watch scans once immediately and then on every tick until ctx is done.
func (w *Watcher) Watch(ctx context.Context) {
	w.Scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan reports every file changed since the previous scan. It is not safe
// for concurrent use.
func (w *Watcher) Scan(ctx context.Context) {
	matches, err := doublestar.Glob(os.DirFS(w.dir), policyPattern)
	if err != nil {
		w.logger.Warn("policy dir scan failed", "dir", w.dir, "error", err)
		return
	}

	present := make(map[string]bool, len(matches))
	for _, name := range matches {
		path := filepath.Join(w.dir, name)
		present[path] = true

		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn("policy stat failed", "path", path, "error", err)
			continue
		}
		if last, ok := w.seen[path]; ok && !info.ModTime().After(last) {
			continue
		}
		w.seen[path] = info.ModTime()

		p, err := LoadPolicy(path)
		if err != nil {
			w.logger.Error("policy reload failed", "path", path, "error", err)
			continue
		}
		w.logger.Info("policy file changed", "path", path, "policy_id", p.ID)
		w.handler.PolicyChanged(ctx, path, p)
	}

	for path := range w.seen {
		if present[path] {
			continue
		}
		delete(w.seen, path)
		w.logger.Info("policy file removed", "path", path)
		w.handler.PolicyRemoved(ctx, path)
	}
}
